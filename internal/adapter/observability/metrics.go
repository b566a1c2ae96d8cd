package observability

import (
	"sync"
	"time"
)

// MetricsStats contains aggregate deduplication statistics.
type MetricsStats struct {
	Batches         int
	CommentsTotal   int
	DuplicatesTotal int
	BatchDuration   time.Duration
	Lookups         int
	LookupDuration  time.Duration
}

// DefaultMetrics provides in-memory metrics tracking for the deduplication
// engine. Safe for concurrent use; the history pass records lookups from
// multiple goroutines.
type DefaultMetrics struct {
	mu    sync.RWMutex
	stats MetricsStats
}

// NewDefaultMetrics creates a metrics tracker.
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{}
}

// RecordBatch records the outcome of one deduplication batch.
func (m *DefaultMetrics) RecordBatch(total, duplicates int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Batches++
	m.stats.CommentsTotal += total
	m.stats.DuplicatesTotal += duplicates
	m.stats.BatchDuration += duration
}

// RecordLookup records one history lookup.
func (m *DefaultMetrics) RecordLookup(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Lookups++
	m.stats.LookupDuration += duration
}

// GetStats returns a copy of current statistics.
func (m *DefaultMetrics) GetStats() MetricsStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stats
}
