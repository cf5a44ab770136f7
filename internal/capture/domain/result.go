package capture

import "sync"

// MeterResult is the per-meter outcome of a capture run, immutable once
// emitted. ChartsAttempted always equals ChartsSuccessful + ChartsFailed.
type MeterResult struct {
	MeterNumber      string   `json:"meter_number"`
	MeterID          string   `json:"meter_id"`
	ChartsAttempted  int      `json:"charts_attempted"`
	ChartsSuccessful int      `json:"charts_successful"`
	ChartsFailed     int      `json:"charts_failed"`
	FailedMetrics    []string `json:"failed_metrics,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
}

// ResultSet accumulates meter results across concurrently running meter
// routines. Appends are atomic; totals are running sums, not recomputed
// from the log.
type ResultSet struct {
	mu           sync.Mutex
	results      []MeterResult
	totalSuccess int
	totalFailed  int
}

// Append adds a meter result in completion order.
func (s *ResultSet) Append(result MeterResult) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.results = append(s.results, result)
	s.totalSuccess += result.ChartsSuccessful
	s.totalFailed += result.ChartsFailed
	s.mu.Unlock()
}

// Totals returns the running success/failure counts.
func (s *ResultSet) Totals() (success, failed int) {
	if s == nil {
		return 0, 0
	}
	s.mu.Lock()
	success, failed = s.totalSuccess, s.totalFailed
	s.mu.Unlock()
	return success, failed
}

// Results returns a copy of the accumulated results.
func (s *ResultSet) Results() []MeterResult {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	results := append([]MeterResult(nil), s.results...)
	s.mu.Unlock()
	return results
}
