package compressor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// minSimulatedSize is the floor of a simulated output, before clamping below the original.
const minSimulatedSize = 1024

// Simulated is the stand-in used when no real encoder is available. It
// fabricates random bytes of a plausible size after a short delay.
type Simulated struct {
	delay  time.Duration
	jitter time.Duration
	tick   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a stand-in compressor. The latency is delay plus a
// random share of jitter; progress is reported every tick.
func NewSimulated(delay, jitter, tick time.Duration) *Simulated {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &Simulated{
		delay:  delay,
		jitter: jitter,
		tick:   tick,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Compressor.
func (c *Simulated) Name() string {
	return "simulated"
}

// Compress waits out the simulated latency, then returns random content of
// SimulatedSize bytes carrying the source MIME type.
func (c *Simulated) Compress(ctx context.Context, src Source, opts Options) (*Output, error) {
	if err := validateOptions(src, opts); err != nil {
		return nil, err
	}

	latency := c.delay
	c.mu.Lock()
	if c.jitter > 0 {
		latency += time.Duration(c.rng.Int63n(int64(c.jitter)))
	}
	c.mu.Unlock()

	if err := c.wait(ctx, latency, opts); err != nil {
		return nil, err
	}

	data := make([]byte, SimulatedSize(src.Size(), opts.Quality))
	c.mu.Lock()
	_, _ = c.rng.Read(data)
	c.mu.Unlock()

	report(opts, 1)
	return &Output{
		MIMEType: src.MIMEType,
		Data:     data,
		Action:   ActionSimulated,
	}, nil
}

func (c *Simulated) wait(ctx context.Context, latency time.Duration, opts Options) error {
	if latency <= 0 {
		return ctx.Err()
	}

	deadline := time.NewTimer(latency)
	defer deadline.Stop()
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			report(opts, math.Min(0.99, float64(time.Since(start))/float64(latency)))
		}
	}
}

// SimulatedSize returns max(1024, floor(originalSize × quality × 0.5)),
// clamped strictly below originalSize.
func SimulatedSize(originalSize int64, quality float64) int64 {
	// the epsilon absorbs float error from percent-to-fraction conversion
	size := int64(math.Floor(float64(originalSize)*quality*0.5 + 1e-6))
	if size < minSimulatedSize {
		size = minSimulatedSize
	}
	if size >= originalSize {
		size = originalSize - 1
	}
	if size < 0 {
		size = 0
	}
	return size
}
