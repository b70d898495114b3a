package statistics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "image_compressor"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(s *Statistics) int64
}

// Collector exposes Statistics as Prometheus counters.
type Collector struct {
	stats    *Statistics
	counters []counterDesc
}

// NewCollector returns a prometheus.Collector reading from stats.
func NewCollector(stats *Statistics) *Collector {
	counter := func(name, help string, value func(s *Statistics) int64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}

	return &Collector{
		stats: stats,
		counters: []counterDesc{
			counter("sessions_created_total", "Page sessions created.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.SessionsCreated) }),
			counter("sessions_expired_total", "Idle page sessions swept.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.SessionsExpired) }),
			counter("uploads_accepted_total", "Selections accepted.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.UploadsAccepted) }),
			counter("uploads_rejected_total", "Selections rejected by validation.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.UploadsRejected) }),
			counter("compressions_succeeded_total", "Successful compressions.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.CompressionsSucceeded) }),
			counter("compressions_failed_total", "Failed compressions.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.CompressionsFailed) }),
			counter("input_bytes_total", "Bytes handed to the compressor.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.BytesIn) }),
			counter("output_bytes_total", "Bytes produced by the compressor.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.BytesOut) }),
			counter("downloads_total", "Results downloaded.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.Downloads) }),
			counter("shares_total", "Results shared.", func(s *Statistics) int64 { return atomic.LoadInt64(&s.SharesOK) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(c.stats)))
	}
}
