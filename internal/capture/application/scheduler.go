package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	capture "meterscope/internal/capture/domain"
)

// Renderer turns a chart series into an encoded image. Implementations
// must not panic or fail; any internal problem returns the nil/empty
// sentinel, which the scheduler reports as a render failure.
type Renderer interface {
	Render(title, unit string, series []capture.ChartPoint) []byte
}

// ArtifactStore persists a rendered chart, addressed by site, meter and
// metric filename.
type ArtifactStore interface {
	Save(ctx context.Context, siteID, meterNumber, metricFilename string, data []byte) error
}

// Summary is the final outcome of a capture run.
type Summary struct {
	TotalSuccess int
	TotalFailed  int
	Cancelled    bool
	Results      []capture.MeterResult
	Log          []capture.LogEntry
	StartedAt    time.Time
	EndedAt      time.Time
}

// Scheduler drives a capture run: it partitions the queue into meter
// groups, processes fixed-size batches of groups concurrently with a
// barrier between batches, and keeps items within a meter strictly
// ordered. Pause and cancel are cooperative flags polled per item; an item
// already inside a render or store step runs to completion.
type Scheduler struct {
	cfg       Config
	assembler *Assembler
	renderer  Renderer
	store     ArtifactStore
	observer  Observer
	cancel    *Flag
	pause     *Flag
	logger    *log.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(cfg Config, assembler *Assembler, renderer Renderer, store ArtifactStore, observer Observer, cancel, pause *Flag, logger *log.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if assembler == nil {
		return nil, errors.New("capture scheduler: nil assembler")
	}
	if renderer == nil {
		return nil, errors.New("capture scheduler: nil renderer")
	}
	if store == nil {
		return nil, errors.New("capture scheduler: nil artifact store")
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if cancel == nil {
		cancel = NewFlag()
	}
	if pause == nil {
		pause = NewFlag()
	}
	return &Scheduler{
		cfg:       cfg,
		assembler: assembler,
		renderer:  renderer,
		store:     store,
		observer:  observer,
		cancel:    cancel,
		pause:     pause,
		logger:    logger,
	}, nil
}

// Run executes a capture run over the queue and blocks until it completes
// or drains after cancellation. The final observer callback fires exactly
// once, including on the empty-queue fatal path.
func (s *Scheduler) Run(ctx context.Context, queue []capture.QueueItem) (*Summary, error) {
	started := time.Now().UTC()
	if len(queue) == 0 {
		s.observer.OnComplete(0, 0, false, nil, nil)
		return nil, capture.ErrEmptyQueue
	}

	groups := capture.GroupByMeter(queue)
	totalMeters := len(groups)
	overallTotal := totalMeters * s.cfg.ChartsPerMeter

	runLog := capture.NewLog(s.observer.OnLogUpdate)
	results := &capture.ResultSet{}

	s.logf("capture_run_start meters=%d items=%d batch_size=%d", totalMeters, len(queue), s.cfg.BatchSize)

	for batchIndex, batch := range capture.SplitBatches(groups, s.cfg.BatchSize) {
		if s.cancel.IsSet() {
			break
		}
		var wg sync.WaitGroup
		for i, group := range batch {
			meterOrdinal := batchIndex*s.cfg.BatchSize + i + 1
			wg.Add(1)
			go func(group capture.MeterGroup, ordinal int) {
				defer wg.Done()
				s.runMeter(ctx, group, ordinal, totalMeters, overallTotal, runLog, results)
			}(group, meterOrdinal)
		}
		wg.Wait()
	}

	success, failed := results.Totals()
	cancelled := s.cancel.IsSet()
	entries := runLog.Snapshot()
	meterResults := results.Results()
	s.observer.OnComplete(success, failed, cancelled, entries, meterResults)
	s.logf("capture_run_done success=%d failed=%d cancelled=%t", success, failed, cancelled)

	return &Summary{
		TotalSuccess: success,
		TotalFailed:  failed,
		Cancelled:    cancelled,
		Results:      meterResults,
		Log:          entries,
		StartedAt:    started,
		EndedAt:      time.Now().UTC(),
	}, nil
}

// runMeter processes one meter group's items strictly in order, then emits
// the meter_complete log entry and the per-meter result exactly once.
func (s *Scheduler) runMeter(ctx context.Context, group capture.MeterGroup, meterOrdinal, totalMeters, overallTotal int, runLog *capture.Log, results *capture.ResultSet) {
	started := time.Now()
	result := capture.MeterResult{
		MeterNumber: group.Meter.Number,
		MeterID:     group.Meter.ID,
	}

	for j, item := range group.Items {
		if s.cancel.IsSet() {
			break
		}
		if cancelled := s.waitWhilePaused(); cancelled {
			break
		}

		current := (meterOrdinal-1)*s.cfg.ChartsPerMeter + j + 1
		if current > overallTotal {
			current = overallTotal
		}
		batchLabel := fmt.Sprintf("Meter %d/%d - Chart %d/%d", meterOrdinal, totalMeters, j+1, len(group.Items))
		s.observer.OnProgress(current, overallTotal, group.Meter.Number, item.Metric.Title, batchLabel)

		err := s.processItem(ctx, item, meterOrdinal, totalMeters, runLog)
		result.ChartsAttempted++
		if err != nil {
			result.ChartsFailed++
			result.FailedMetrics = append(result.FailedMetrics, item.Metric.Title)
		} else {
			result.ChartsSuccessful++
		}
	}

	result.DurationMs = time.Since(started).Milliseconds()
	runLog.Append(capture.LogEntry{
		MeterNumber: group.Meter.Number,
		MetricLabel: fmt.Sprintf("%d/%d charts captured", result.ChartsSuccessful, result.ChartsAttempted),
		Status:      capture.StatusMeterComplete,
		DurationMs:  result.DurationMs,
		MeterIndex:  meterOrdinal,
		TotalMeters: totalMeters,
	})
	s.observer.OnMeterComplete(result)
	results.Append(result)
}

// processItem runs one item through assemble -> render -> persist. Failures
// are isolated: the error is logged against the item and returned for
// counting, never propagated to sibling items.
func (s *Scheduler) processItem(ctx context.Context, item capture.QueueItem, meterOrdinal, totalMeters int, runLog *capture.Log) error {
	started := time.Now()
	entry := capture.LogEntry{
		MeterNumber: item.Meter.Number,
		MetricKey:   string(item.MetricKey),
		MetricLabel: item.Metric.Title,
		Attempt:     1,
		MeterIndex:  meterOrdinal,
		TotalMeters: totalMeters,
	}

	logStatus := func(status capture.Status, err error, withDuration bool) {
		next := entry
		next.Status = status
		if err != nil {
			next.Error = err.Error()
		}
		if withDuration {
			next.DurationMs = time.Since(started).Milliseconds()
		}
		runLog.Append(next)
	}

	fail := func(err error) error {
		logStatus(capture.StatusFailed, err, true)
		s.logf("capture_item_failed meter=%s metric=%s err=%v", item.Meter.Number, item.MetricKey, err)
		return err
	}

	logStatus(capture.StatusRendering, nil, false)
	series, err := s.assembleWithTimeout(ctx, item)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", capture.ErrDataUnavailable, err))
	}
	if len(series) == 0 {
		return fail(capture.ErrDataUnavailable)
	}

	logStatus(capture.StatusCapturing, nil, false)
	image := s.renderer.Render(item.Metric.Title, item.Metric.Unit, series)
	if len(image) == 0 {
		return fail(capture.ErrRenderFailure)
	}

	if err := s.saveWithTimeout(ctx, item, image); err != nil {
		return fail(fmt.Errorf("%w: %v", capture.ErrStorageFailure, err))
	}

	logStatus(capture.StatusSuccess, nil, true)
	return nil
}

func (s *Scheduler) assembleWithTimeout(ctx context.Context, item capture.QueueItem) ([]capture.ChartPoint, error) {
	ctx, cancel := s.stepContext(ctx)
	defer cancel()
	return s.assembler.Assemble(ctx, item.Meter, item.Documents, item.MetricKey)
}

func (s *Scheduler) saveWithTimeout(ctx context.Context, item capture.QueueItem, image []byte) error {
	ctx, cancel := s.stepContext(ctx)
	defer cancel()
	return s.store.Save(ctx, item.Meter.SiteID, item.Meter.Number, item.Metric.Filename, image)
}

func (s *Scheduler) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := s.cfg.ItemTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// waitWhilePaused blocks while the pause flag is set, polling at the
// configured interval, and reports whether cancellation was observed. The
// pause notifications fire only when a pause episode actually occurred.
func (s *Scheduler) waitWhilePaused() (cancelled bool) {
	if !s.pause.IsSet() {
		return s.cancel.IsSet()
	}
	s.observer.OnPauseStateChange(true)
	for s.pause.IsSet() && !s.cancel.IsSet() {
		time.Sleep(s.cfg.PausePoll())
	}
	s.observer.OnPauseStateChange(false)
	return s.cancel.IsSet()
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
