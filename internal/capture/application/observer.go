package application

import (
	capture "meterscope/internal/capture/domain"
)

// Observer receives capture run callbacks. Implementations must be safe for
// concurrent use: progress and log callbacks fire from concurrently running
// meter routines.
type Observer interface {
	// OnProgress reports one item about to be processed. current is
	// 1-based and never exceeds total = totalMeters x chartsPerMeter.
	OnProgress(current, total int, meterNumber, metricTitle, batchLabel string)
	// OnLogUpdate receives a full log snapshot after every append.
	OnLogUpdate(entries []capture.LogEntry)
	// OnMeterComplete fires once per meter group with its final result.
	OnMeterComplete(result capture.MeterResult)
	// OnComplete fires once at the end of the run, cancelled or not.
	OnComplete(totalSuccess, totalFailed int, cancelled bool, entries []capture.LogEntry, results []capture.MeterResult)
	// OnPauseStateChange fires when a meter routine enters or leaves the
	// pause wait loop.
	OnPauseStateChange(paused bool)
}

// NopObserver discards all callbacks.
type NopObserver struct{}

func (NopObserver) OnProgress(int, int, string, string, string) {}
func (NopObserver) OnLogUpdate([]capture.LogEntry)              {}
func (NopObserver) OnMeterComplete(capture.MeterResult)         {}
func (NopObserver) OnComplete(int, int, bool, []capture.LogEntry, []capture.MeterResult) {
}
func (NopObserver) OnPauseStateChange(bool) {}

// MultiObserver fans callbacks out to several observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver constructs a fan-out observer, skipping nil entries.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	multi := &MultiObserver{}
	for _, observer := range observers {
		if observer != nil {
			multi.observers = append(multi.observers, observer)
		}
	}
	return multi
}

func (m *MultiObserver) OnProgress(current, total int, meterNumber, metricTitle, batchLabel string) {
	for _, observer := range m.observers {
		observer.OnProgress(current, total, meterNumber, metricTitle, batchLabel)
	}
}

func (m *MultiObserver) OnLogUpdate(entries []capture.LogEntry) {
	for _, observer := range m.observers {
		observer.OnLogUpdate(entries)
	}
}

func (m *MultiObserver) OnMeterComplete(result capture.MeterResult) {
	for _, observer := range m.observers {
		observer.OnMeterComplete(result)
	}
}

func (m *MultiObserver) OnComplete(totalSuccess, totalFailed int, cancelled bool, entries []capture.LogEntry, results []capture.MeterResult) {
	for _, observer := range m.observers {
		observer.OnComplete(totalSuccess, totalFailed, cancelled, entries, results)
	}
}

func (m *MultiObserver) OnPauseStateChange(paused bool) {
	for _, observer := range m.observers {
		observer.OnPauseStateChange(paused)
	}
}
