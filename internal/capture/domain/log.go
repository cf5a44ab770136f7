package capture

import (
	"sync"
	"time"
)

// Status is the lifecycle state recorded in a capture log entry.
type Status string

// Capture log statuses. A chart item moves pending -> rendering ->
// capturing -> success|failed; retrying is reserved for a retry policy;
// meter_complete is a per-meter summary event, not an item state.
const (
	StatusPending       Status = "pending"
	StatusRendering     Status = "rendering"
	StatusCapturing     Status = "capturing"
	StatusSuccess       Status = "success"
	StatusFailed        Status = "failed"
	StatusRetrying      Status = "retrying"
	StatusMeterComplete Status = "meter_complete"
)

// LogEntry is one append-only capture log record.
type LogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	MeterNumber string    `json:"meter_number"`
	MetricKey   string    `json:"metric_key,omitempty"`
	MetricLabel string    `json:"metric_label,omitempty"`
	Status      Status    `json:"status"`
	Attempt     int       `json:"attempt,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	MeterIndex  int       `json:"meter_index,omitempty"`
	TotalMeters int       `json:"total_meters,omitempty"`
}

// Log is an append-only capture log shared by concurrently running meter
// routines. Every append delivers a full snapshot to the subscriber, so a
// late subscriber sees complete history. Snapshots are delivered in append
// order.
type Log struct {
	mu       sync.Mutex
	entries  []LogEntry
	onAppend func([]LogEntry)
}

// NewLog constructs a log. onAppend may be nil.
func NewLog(onAppend func(snapshot []LogEntry)) *Log {
	return &Log{onAppend: onAppend}
}

// Append records an entry, stamping the time if unset, and notifies the
// subscriber with a full snapshot.
func (l *Log) Append(entry LogEntry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	snapshot := append([]LogEntry(nil), l.entries...)
	notify := l.onAppend
	if notify != nil {
		// Deliver under the lock so snapshots arrive in append order.
		notify(snapshot)
	}
	l.mu.Unlock()
}

// Snapshot returns a copy of all entries appended so far.
func (l *Log) Snapshot() []LogEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	snapshot := append([]LogEntry(nil), l.entries...)
	l.mu.Unlock()
	return snapshot
}

// Len returns the number of appended entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	return n
}
