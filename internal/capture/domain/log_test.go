package capture

import (
	"sync"
	"testing"
)

func TestLogDeliversFullSnapshotPerAppend(t *testing.T) {
	var snapshots [][]LogEntry
	log := NewLog(func(snapshot []LogEntry) {
		snapshots = append(snapshots, snapshot)
	})

	log.Append(LogEntry{MeterNumber: "1001", Status: StatusRendering})
	log.Append(LogEntry{MeterNumber: "1001", Status: StatusCapturing})
	log.Append(LogEntry{MeterNumber: "1001", Status: StatusSuccess})

	if len(snapshots) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(snapshots))
	}
	for i, snapshot := range snapshots {
		if len(snapshot) != i+1 {
			t.Fatalf("snapshot %d has %d entries, want %d", i, len(snapshot), i+1)
		}
	}
	last := snapshots[2]
	if last[0].Status != StatusRendering || last[2].Status != StatusSuccess {
		t.Fatal("snapshot entries out of append order")
	}
	if last[0].Timestamp.IsZero() {
		t.Fatal("append did not stamp entry time")
	}
}

func TestLogSnapshotIsACopy(t *testing.T) {
	log := NewLog(nil)
	log.Append(LogEntry{MeterNumber: "1001", Status: StatusSuccess})

	snapshot := log.Snapshot()
	snapshot[0].MeterNumber = "mutated"

	if got := log.Snapshot()[0].MeterNumber; got != "1001" {
		t.Fatalf("log mutated through snapshot: %s", got)
	}
}

func TestLogConcurrentAppends(t *testing.T) {
	log := NewLog(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				log.Append(LogEntry{MeterNumber: "1001", Status: StatusRendering})
			}
		}()
	}
	wg.Wait()

	if log.Len() != 200 {
		t.Fatalf("entries = %d, want 200", log.Len())
	}
}

func TestResultSetRunningTotals(t *testing.T) {
	set := &ResultSet{}
	set.Append(MeterResult{MeterNumber: "1001", ChartsAttempted: 6, ChartsSuccessful: 5, ChartsFailed: 1})
	set.Append(MeterResult{MeterNumber: "1002", ChartsAttempted: 6, ChartsSuccessful: 6})

	success, failed := set.Totals()
	if success != 11 || failed != 1 {
		t.Fatalf("totals = %d/%d, want 11/1", success, failed)
	}
	results := set.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, result := range results {
		if result.ChartsAttempted != result.ChartsSuccessful+result.ChartsFailed {
			t.Fatalf("result %s breaks attempted = successful + failed", result.MeterNumber)
		}
	}
}
