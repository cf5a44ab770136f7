package application

import (
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	billing "meterscope/internal/billing/domain"
	capture "meterscope/internal/capture/domain"
	catalog "meterscope/internal/catalog/domain"
)

type progressEvent struct {
	current     int
	total       int
	meterNumber string
	metricTitle string
	batchLabel  string
}

// recorder captures observer callbacks for assertions. done is closed once
// OnComplete fires.
type recorder struct {
	mu           sync.Mutex
	progress     []progressEvent
	logUpdates   int
	lastLog      []capture.LogEntry
	meterResults []capture.MeterResult
	pauseStates  []bool
	totalSuccess int
	totalFailed  int
	cancelled    bool
	finalResults []capture.MeterResult
	done         chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) OnProgress(current, total int, meterNumber, metricTitle, batchLabel string) {
	r.mu.Lock()
	r.progress = append(r.progress, progressEvent{current, total, meterNumber, metricTitle, batchLabel})
	r.mu.Unlock()
}

func (r *recorder) OnLogUpdate(entries []capture.LogEntry) {
	r.mu.Lock()
	r.logUpdates++
	r.lastLog = entries
	r.mu.Unlock()
}

func (r *recorder) OnMeterComplete(result capture.MeterResult) {
	r.mu.Lock()
	r.meterResults = append(r.meterResults, result)
	r.mu.Unlock()
}

func (r *recorder) OnComplete(totalSuccess, totalFailed int, cancelled bool, entries []capture.LogEntry, results []capture.MeterResult) {
	r.mu.Lock()
	r.totalSuccess = totalSuccess
	r.totalFailed = totalFailed
	r.cancelled = cancelled
	r.lastLog = entries
	r.finalResults = results
	r.mu.Unlock()
	close(r.done)
}

func (r *recorder) OnPauseStateChange(paused bool) {
	r.mu.Lock()
	r.pauseStates = append(r.pauseStates, paused)
	r.mu.Unlock()
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}
}

type stubRenderer struct {
	failTitles map[string]bool
}

func (r stubRenderer) Render(title, unit string, series []capture.ChartPoint) []byte {
	if r.failTitles[title] {
		return nil
	}
	if len(series) == 0 {
		return nil
	}
	return []byte("chart:" + title)
}

type stubStore struct {
	mu        sync.Mutex
	saves     []string
	err       error
	afterSave func()
}

func (s *stubStore) Save(_ context.Context, siteID, meterNumber, metricFilename string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.saves = append(s.saves, siteID+"/"+meterNumber+"/"+metricFilename)
	s.mu.Unlock()
	if s.afterSave != nil {
		s.afterSave()
	}
	return nil
}

func (s *stubStore) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

func testConfig(chartsPerMeter int) Config {
	return Config{
		BatchSize:      3,
		ChartsPerMeter: chartsPerMeter,
		PausePollMs:    5,
		StorageRoot:    "unused",
	}
}

func queueFor(meterID, meterNumber string, keys ...billing.MetricKey) []capture.QueueItem {
	meter := catalog.Meter{ID: meterID, SiteID: "site-1", Number: meterNumber}
	docs := []billing.Document{billedDocument("doc-"+meterID, monthEnd(2025, time.May), 100)}
	var queue []capture.QueueItem
	for _, key := range keys {
		info, ok := billing.MetricInfoFor(key)
		if !ok {
			info = billing.MetricInfo{Key: key, Title: string(key), Filename: string(key)}
		}
		queue = append(queue, capture.QueueItem{
			Meter:     meter,
			Documents: docs,
			MetricKey: key,
			Metric:    info,
		})
	}
	return queue
}

func newTestScheduler(t *testing.T, cfg Config, renderer Renderer, store ArtifactStore, observer Observer, cancel, pause *Flag) *Scheduler {
	t.Helper()
	assembler, err := NewAssembler(stubReconSource{})
	if err != nil {
		t.Fatalf("new assembler: %v", err)
	}
	scheduler, err := NewScheduler(cfg, assembler, renderer, store, observer, cancel, pause, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func TestRunSingleMeterAllChartsSucceed(t *testing.T) {
	rec := newRecorder()
	store := &stubStore{}
	queue := queueFor("m1", "1001", billing.MetricTotal, billing.MetricKWhCharge)
	scheduler := newTestScheduler(t, testConfig(2), stubRenderer{}, store, rec, nil, nil)

	summary, err := scheduler.Run(context.Background(), queue)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	if len(rec.meterResults) != 1 {
		t.Fatalf("meter results = %d, want 1", len(rec.meterResults))
	}
	result := rec.meterResults[0]
	if result.ChartsAttempted != 2 || result.ChartsSuccessful != 2 || result.ChartsFailed != 0 {
		t.Fatalf("result = %d/%d/%d, want 2/2/0", result.ChartsAttempted, result.ChartsSuccessful, result.ChartsFailed)
	}
	if summary.TotalSuccess != 2 || summary.TotalFailed != 0 || summary.Cancelled {
		t.Fatalf("summary = %+v", summary)
	}
	if len(store.saved()) != 2 {
		t.Fatalf("saved = %d charts, want 2", len(store.saved()))
	}

	// Progress invariant: 0 < current <= total, total = meters x charts.
	for _, event := range rec.progress {
		if event.current <= 0 || event.current > event.total {
			t.Fatalf("progress %d/%d out of bounds", event.current, event.total)
		}
		if event.total != 2 {
			t.Fatalf("progress total = %d, want 2", event.total)
		}
	}
	if len(rec.progress) != 2 {
		t.Fatalf("progress events = %d, want 2", len(rec.progress))
	}
	if rec.progress[0].batchLabel != "Meter 1/1 - Chart 1/2" {
		t.Fatalf("batch label = %q", rec.progress[0].batchLabel)
	}

	// Per item: rendering, capturing, success; plus one meter_complete.
	if len(rec.lastLog) != 7 {
		t.Fatalf("log entries = %d, want 7", len(rec.lastLog))
	}
	if rec.lastLog[6].Status != capture.StatusMeterComplete {
		t.Fatalf("last entry = %s, want meter_complete", rec.lastLog[6].Status)
	}
	if rec.logUpdates != 7 {
		t.Fatalf("log updates = %d, want one per append", rec.logUpdates)
	}
}

func TestRunRenderFailureIsIsolatedToItem(t *testing.T) {
	rec := newRecorder()
	store := &stubStore{}
	queue := queueFor("m1", "1001", billing.MetricTotal, billing.MetricBasic)
	renderer := stubRenderer{failTitles: map[string]bool{"Basic Charge": true}}
	scheduler := newTestScheduler(t, testConfig(2), renderer, store, rec, nil, nil)

	// The document has no Monthly line item either, but render never runs
	// for basic: assembly already fails it. Add a Monthly line so the basic
	// chart reaches the renderer.
	for i := range queue {
		docs := append([]billing.Document(nil), queue[i].Documents...)
		docs[0].LineItems = append(docs[0].LineItems, billing.LineItem{
			Unit: billing.UnitMonthly, Supply: billing.SupplyNormal, Amount: docs[0].TotalAmount,
		})
		queue[i].Documents = docs
	}

	if _, err := scheduler.Run(context.Background(), queue); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	result := rec.meterResults[0]
	if result.ChartsAttempted != 2 || result.ChartsSuccessful != 1 || result.ChartsFailed != 1 {
		t.Fatalf("result = %d/%d/%d, want 2/1/1", result.ChartsAttempted, result.ChartsSuccessful, result.ChartsFailed)
	}
	if len(result.FailedMetrics) != 1 || result.FailedMetrics[0] != "Basic Charge" {
		t.Fatalf("failed metrics = %v, want [Basic Charge]", result.FailedMetrics)
	}

	var failedEntry *capture.LogEntry
	for i := range rec.lastLog {
		if rec.lastLog[i].Status == capture.StatusFailed {
			failedEntry = &rec.lastLog[i]
		}
	}
	if failedEntry == nil {
		t.Fatal("no failed log entry")
	}
	if !strings.Contains(failedEntry.Error, "render") {
		t.Fatalf("failed entry error = %q, want render failure", failedEntry.Error)
	}
	if failedEntry.MetricLabel != "Basic Charge" {
		t.Fatalf("failed entry metric = %q", failedEntry.MetricLabel)
	}
}

func TestRunDataUnavailableWhenSeriesEmpty(t *testing.T) {
	rec := newRecorder()
	store := &stubStore{}
	// kva-charge has no matching line item in the test document, so
	// assembly yields an empty series.
	queue := queueFor("m1", "1001", billing.MetricKVACharge)
	scheduler := newTestScheduler(t, testConfig(1), stubRenderer{}, store, rec, nil, nil)

	if _, err := scheduler.Run(context.Background(), queue); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	if rec.totalFailed != 1 || rec.totalSuccess != 0 {
		t.Fatalf("totals = %d/%d, want 0/1", rec.totalSuccess, rec.totalFailed)
	}
	if len(store.saved()) != 0 {
		t.Fatal("no chart should be persisted")
	}
	var sawCapturing bool
	for _, entry := range rec.lastLog {
		if entry.Status == capture.StatusCapturing {
			sawCapturing = true
		}
	}
	if sawCapturing {
		t.Fatal("capturing logged for an item that never reached the renderer")
	}
}

func TestRunStorageFailureCountsAgainstItem(t *testing.T) {
	rec := newRecorder()
	store := &stubStore{err: context.DeadlineExceeded}
	queue := queueFor("m1", "1001", billing.MetricTotal)
	scheduler := newTestScheduler(t, testConfig(1), stubRenderer{}, store, rec, nil, nil)

	if _, err := scheduler.Run(context.Background(), queue); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	if rec.totalFailed != 1 {
		t.Fatalf("failed = %d, want 1", rec.totalFailed)
	}
	var failedEntry *capture.LogEntry
	for i := range rec.lastLog {
		if rec.lastLog[i].Status == capture.StatusFailed {
			failedEntry = &rec.lastLog[i]
		}
	}
	if failedEntry == nil || !strings.Contains(failedEntry.Error, "artifact store") {
		t.Fatalf("failed entry = %+v, want storage failure", failedEntry)
	}
}

func TestRunBatchesAreSequentialWithBarrier(t *testing.T) {
	rec := newRecorder()
	store := &stubStore{}
	var queue []capture.QueueItem
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		queue = append(queue, queueFor(id, "n-"+id, billing.MetricTotal, billing.MetricKWhCharge)...)
	}
	scheduler := newTestScheduler(t, testConfig(2), stubRenderer{}, store, rec, nil, nil)

	if _, err := scheduler.Run(context.Background(), queue); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	if len(rec.meterResults) != 4 {
		t.Fatalf("meter results = %d, want 4", len(rec.meterResults))
	}

	// Batch size 3 over 4 meters: meter 4 runs in the second batch, so all
	// batch-1 meter_complete entries precede any entry for meter ordinal 4.
	firstBatchCompletes := 0
	for _, entry := range rec.lastLog {
		if entry.MeterIndex == 4 {
			break
		}
		if entry.Status == capture.StatusMeterComplete {
			firstBatchCompletes++
		}
	}
	if firstBatchCompletes != 3 {
		t.Fatalf("meter_complete entries before batch 2 = %d, want 3", firstBatchCompletes)
	}

	// Progress totals reflect meters x configured charts per meter.
	for _, event := range rec.progress {
		if event.total != 8 {
			t.Fatalf("progress total = %d, want 8", event.total)
		}
		if event.current <= 0 || event.current > event.total {
			t.Fatalf("progress %d/%d out of bounds", event.current, event.total)
		}
	}
}

func TestRunCancellationDrainsRemainingItems(t *testing.T) {
	rec := newRecorder()
	cancel := NewFlag()
	store := &stubStore{afterSave: func() { cancel.Set(true) }}
	queue := queueFor("m1", "1001", billing.MetricTotal, billing.MetricKWhCharge, billing.MetricKWhConsumption)
	scheduler := newTestScheduler(t, testConfig(3), stubRenderer{}, store, rec, cancel, nil)

	summary, err := scheduler.Run(context.Background(), queue)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rec.wait(t)

	if !summary.Cancelled || !rec.cancelled {
		t.Fatal("run not reported as cancelled")
	}
	result := rec.meterResults[0]
	if result.ChartsAttempted != 1 || result.ChartsSuccessful != 1 {
		t.Fatalf("result = %d attempted/%d success, want 1/1", result.ChartsAttempted, result.ChartsSuccessful)
	}
	for _, entry := range rec.lastLog {
		if entry.MetricKey == string(billing.MetricKWhCharge) || entry.MetricKey == string(billing.MetricKWhConsumption) {
			t.Fatalf("log entry for drained item %s", entry.MetricKey)
		}
	}
}

func TestRunPauseSuspendsAndResumesWithoutSkips(t *testing.T) {
	rec := newRecorder()
	pause := NewFlag()
	pause.Set(true)
	store := &stubStore{}
	queue := queueFor("m1", "1001", billing.MetricTotal, billing.MetricKWhCharge)
	scheduler := newTestScheduler(t, testConfig(2), stubRenderer{}, store, rec, nil, pause)

	go func() {
		_, _ = scheduler.Run(context.Background(), queue)
	}()

	// Wait for the routine to enter the pause loop.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec.mu.Lock()
		entered := len(rec.pauseStates) > 0 && rec.pauseStates[0]
		logged := len(rec.lastLog)
		rec.mu.Unlock()
		if entered {
			if logged != 0 {
				t.Fatalf("log entries while paused = %d, want 0", logged)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pause state never reported")
		}
		time.Sleep(time.Millisecond)
	}

	pause.Set(false)
	rec.wait(t)

	if rec.totalSuccess != 2 || rec.totalFailed != 0 {
		t.Fatalf("totals = %d/%d, want 2/0", rec.totalSuccess, rec.totalFailed)
	}
	if len(store.saved()) != 2 {
		t.Fatalf("saved = %d, want 2 (no item skipped or duplicated)", len(store.saved()))
	}

	rec.mu.Lock()
	states := append([]bool(nil), rec.pauseStates...)
	rec.mu.Unlock()
	if len(states) < 2 || !states[0] || states[len(states)-1] {
		t.Fatalf("pause states = %v, want true then false", states)
	}
}

func TestRunEmptyQueueReportsOnceWithZeroTotals(t *testing.T) {
	rec := newRecorder()
	scheduler := newTestScheduler(t, testConfig(1), stubRenderer{}, &stubStore{}, rec, nil, nil)

	_, err := scheduler.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty queue")
	}
	rec.wait(t)

	if rec.totalSuccess != 0 || rec.totalFailed != 0 || rec.cancelled {
		t.Fatalf("final callback = %d/%d cancelled=%t, want zeros", rec.totalSuccess, rec.totalFailed, rec.cancelled)
	}
}
