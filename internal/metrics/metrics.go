package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	EntriesProcessed   int64
	Outcomes           map[string]int64
	FeedFailures       int64
	PageFetchFailures  int64
	SuccessfulRewrites int64
	FailedRewrites     int64
	RewriteCacheHits   int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true, Outcomes: make(map[string]int64)}
}

func (m *Metrics) IncrementEntriesProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesProcessed++
}

// RecordOutcome counts one per-entry pipeline outcome, keyed by its name.
func (m *Metrics) RecordOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[outcome]++
}

func (m *Metrics) IncrementFeedFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedFailures++
}

func (m *Metrics) IncrementPageFetchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PageFetchFailures++
}

func (m *Metrics) IncrementSuccessfulRewrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SuccessfulRewrites++
}

func (m *Metrics) IncrementFailedRewrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedRewrites++
}

func (m *Metrics) IncrementRewriteCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RewriteCacheHits++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) Outcome(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Outcomes[name]
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcomes := make(map[string]int64, len(m.Outcomes))
	for k, v := range m.Outcomes {
		outcomes[k] = v
	}

	return map[string]interface{}{
		"entries_processed":          m.EntriesProcessed,
		"outcomes":                   outcomes,
		"feed_failures":              m.FeedFailures,
		"page_fetch_failures":        m.PageFetchFailures,
		"successful_rewrites":        m.SuccessfulRewrites,
		"failed_rewrites":            m.FailedRewrites,
		"rewrite_cache_hits":         m.RewriteCacheHits,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
