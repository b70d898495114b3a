package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics contains process-wide counters for the compressor service.
type Statistics struct {
	SessionsCreated int64
	SessionsExpired int64

	UploadsAccepted int64
	UploadsRejected int64

	CompressionsStarted   int64
	CompressionsSucceeded int64
	CompressionsFailed    int64

	BytesIn  int64
	BytesOut int64

	Downloads      int64
	SharesOK       int64
	SharesCanceled int64
	SharesFailed   int64
	HistoryCleared int64

	StartTime time.Time

	mutex         sync.RWMutex
	Errors        []StatError
	RejectReasons map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FileName  string
	Operation string
	Error     string
	Timestamp time.Time
}

// maxErrors bounds the retained error list.
const maxErrors = 100

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		Errors:        make([]StatError, 0),
		RejectReasons: make(map[string]int64),
	}
}

// IncrementSessionsCreated increases the count of created sessions by 1.
func (s *Statistics) IncrementSessionsCreated() {
	atomic.AddInt64(&s.SessionsCreated, 1)
}

// AddSessionsExpired adds n to the count of swept sessions.
func (s *Statistics) AddSessionsExpired(n int) {
	atomic.AddInt64(&s.SessionsExpired, int64(n))
}

// IncrementUploadsAccepted increases the count of accepted uploads by 1.
func (s *Statistics) IncrementUploadsAccepted() {
	atomic.AddInt64(&s.UploadsAccepted, 1)
}

// IncrementUploadsRejected records a rejected upload and its reason.
func (s *Statistics) IncrementUploadsRejected(reason string) {
	atomic.AddInt64(&s.UploadsRejected, 1)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.RejectReasons[reason]++
}

// IncrementCompressionsStarted increases the count of started compressions by 1.
func (s *Statistics) IncrementCompressionsStarted() {
	atomic.AddInt64(&s.CompressionsStarted, 1)
}

// RecordCompression records a successful compression and its sizes.
func (s *Statistics) RecordCompression(originalSize, compressedSize int64) {
	atomic.AddInt64(&s.CompressionsSucceeded, 1)
	atomic.AddInt64(&s.BytesIn, originalSize)
	atomic.AddInt64(&s.BytesOut, compressedSize)
}

// IncrementCompressionsFailed increases the count of failed compressions by 1.
func (s *Statistics) IncrementCompressionsFailed() {
	atomic.AddInt64(&s.CompressionsFailed, 1)
}

// IncrementDownloads increases the count of downloads by 1.
func (s *Statistics) IncrementDownloads() {
	atomic.AddInt64(&s.Downloads, 1)
}

// IncrementSharesOK increases the count of completed shares by 1.
func (s *Statistics) IncrementSharesOK() {
	atomic.AddInt64(&s.SharesOK, 1)
}

// IncrementSharesCanceled increases the count of canceled shares by 1.
func (s *Statistics) IncrementSharesCanceled() {
	atomic.AddInt64(&s.SharesCanceled, 1)
}

// IncrementSharesFailed increases the count of failed shares by 1.
func (s *Statistics) IncrementSharesFailed() {
	atomic.AddInt64(&s.SharesFailed, 1)
}

// IncrementHistoryCleared increases the count of history clears by 1.
func (s *Statistics) IncrementHistoryCleared() {
	atomic.AddInt64(&s.HistoryCleared, 1)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(fileName, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.Errors) >= maxErrors {
		s.Errors = s.Errors[1:]
	}
	s.Errors = append(s.Errors, StatError{
		FileName:  fileName,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// BytesSaved returns the total number of bytes removed by compression.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
}

// SavedPercentage returns the overall reduction over all compressions.
func (s *Statistics) SavedPercentage() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	if in == 0 {
		return 0
	}
	return float64(s.BytesSaved()) * 100 / float64(in)
}

// Snapshot returns the counters as a map suitable for JSON.
func (s *Statistics) Snapshot() map[string]interface{} {
	s.mutex.RLock()
	reasons := make(map[string]int64, len(s.RejectReasons))
	for k, v := range s.RejectReasons {
		reasons[k] = v
	}
	s.mutex.RUnlock()

	return map[string]interface{}{
		"sessions_created":       atomic.LoadInt64(&s.SessionsCreated),
		"sessions_expired":       atomic.LoadInt64(&s.SessionsExpired),
		"uploads_accepted":       atomic.LoadInt64(&s.UploadsAccepted),
		"uploads_rejected":       atomic.LoadInt64(&s.UploadsRejected),
		"reject_reasons":         reasons,
		"compressions_started":   atomic.LoadInt64(&s.CompressionsStarted),
		"compressions_succeeded": atomic.LoadInt64(&s.CompressionsSucceeded),
		"compressions_failed":    atomic.LoadInt64(&s.CompressionsFailed),
		"bytes_in":               atomic.LoadInt64(&s.BytesIn),
		"bytes_out":              atomic.LoadInt64(&s.BytesOut),
		"downloads":              atomic.LoadInt64(&s.Downloads),
		"shares_ok":              atomic.LoadInt64(&s.SharesOK),
		"shares_canceled":        atomic.LoadInt64(&s.SharesCanceled),
		"shares_failed":          atomic.LoadInt64(&s.SharesFailed),
		"history_cleared":        atomic.LoadInt64(&s.HistoryCleared),
		"uptime_seconds":         int64(time.Since(s.StartTime).Seconds()),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	return fmt.Sprintf(`Image Compressor Statistics Summary:

Sessions:
		Created: %d
		Expired: %d

Uploads:
		Accepted: %d
		Rejected: %d

Compressions:
		Started: %d
		Succeeded: %d
		Failed: %d
		Bytes In: %s
		Bytes Out: %s
		Saved: %s (%.1f%%)

Results:
		Downloads: %d
		Shares: %d ok, %d canceled, %d failed
		History Cleared: %d

Uptime: %v`,
		atomic.LoadInt64(&s.SessionsCreated),
		atomic.LoadInt64(&s.SessionsExpired),
		atomic.LoadInt64(&s.UploadsAccepted),
		atomic.LoadInt64(&s.UploadsRejected),
		atomic.LoadInt64(&s.CompressionsStarted),
		atomic.LoadInt64(&s.CompressionsSucceeded),
		atomic.LoadInt64(&s.CompressionsFailed),
		humanize.IBytes(uint64(atomic.LoadInt64(&s.BytesIn))),
		humanize.IBytes(uint64(atomic.LoadInt64(&s.BytesOut))),
		humanize.IBytes(uint64(max(s.BytesSaved(), 0))),
		s.SavedPercentage(),
		atomic.LoadInt64(&s.Downloads),
		atomic.LoadInt64(&s.SharesOK),
		atomic.LoadInt64(&s.SharesCanceled),
		atomic.LoadInt64(&s.SharesFailed),
		atomic.LoadInt64(&s.HistoryCleared),
		time.Since(s.StartTime).Round(time.Second))
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FileName,
			err.Error)
	}
	return result
}
