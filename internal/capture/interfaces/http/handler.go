package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"meterscope/internal/audit"
	billing "meterscope/internal/billing/domain"
	"meterscope/internal/capture/application"
	capture "meterscope/internal/capture/domain"
	capturepg "meterscope/internal/capture/infrastructure/postgres"
	"meterscope/internal/capture/notify"
	catalog "meterscope/internal/catalog/domain"
)

// Handler owns the capture run lifecycle: at most one run is active at a
// time, controlled through cooperative cancel and pause flags.
type Handler struct {
	cfg         application.Config
	assembler   *application.Assembler
	renderer    application.Renderer
	store       application.ArtifactStore
	meters      catalog.MeterRepository
	documents   application.DocumentSource
	runs        *capturepg.Repository
	notifier    notify.Notifier
	broker      *SSEBroker
	observer    application.Observer
	auditLogger audit.Logger
	logger      *log.Logger

	mu        sync.Mutex
	running   bool
	runID     string
	cancel    *application.Flag
	pause     *application.Flag
	summary   *application.Summary
	summaryID string
}

// NewHandler constructs a capture handler. The runs repository, notifier,
// broker, extra observer and audit logger are optional.
func NewHandler(
	cfg application.Config,
	assembler *application.Assembler,
	renderer application.Renderer,
	store application.ArtifactStore,
	meters catalog.MeterRepository,
	documents application.DocumentSource,
	runs *capturepg.Repository,
	notifier notify.Notifier,
	broker *SSEBroker,
	observer application.Observer,
	auditLogger audit.Logger,
	logger *log.Logger,
) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if assembler == nil {
		return nil, errors.New("capture handler: nil assembler")
	}
	if renderer == nil {
		return nil, errors.New("capture handler: nil renderer")
	}
	if store == nil {
		return nil, errors.New("capture handler: nil artifact store")
	}
	if meters == nil {
		return nil, errors.New("capture handler: nil meter repository")
	}
	if documents == nil {
		return nil, errors.New("capture handler: nil document source")
	}
	return &Handler{
		cfg:         cfg,
		assembler:   assembler,
		renderer:    renderer,
		store:       store,
		meters:      meters,
		documents:   documents,
		runs:        runs,
		notifier:    notifier,
		broker:      broker,
		observer:    observer,
		auditLogger: auditLogger,
		logger:      logger,
	}, nil
}

type startRunRequest struct {
	MeterIDs   []string `json:"meter_ids"`
	MetricKeys []string `json:"metric_keys"`
}

type startRunResponse struct {
	RunID          string `json:"run_id"`
	TotalMeters    int    `json:"total_meters"`
	ChartsPerMeter int    `json:"charts_per_meter"`
	TotalCharts    int    `json:"total_charts"`
}

type runStateResponse struct {
	Running      bool                  `json:"running"`
	Paused       bool                  `json:"paused"`
	Cancelled    bool                  `json:"cancelled"`
	RunID        string                `json:"run_id,omitempty"`
	TotalSuccess int                   `json:"total_success,omitempty"`
	TotalFailed  int                   `json:"total_failed,omitempty"`
	Results      []capture.MeterResult `json:"results,omitempty"`
}

// ServeRuns handles POST (start) and GET (state/history) on
// /api/v1/capture/runs.
func (h *Handler) ServeRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleStart(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ServeCancel handles POST /api/v1/capture/runs/cancel. Cancellation is
// cooperative; in-flight items drain before the run ends.
func (h *Handler) ServeCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running || h.cancel == nil {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	h.cancel.Set(true)
	h.logf("capture_cancel_requested run_id=%s", h.runID)
	h.logAudit(r, "capture.cancel", h.runID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"run_id": h.runID, "status": "cancelling"})
}

// ServePause handles POST /api/v1/capture/runs/pause with body
// {"paused": true|false}.
func (h *Handler) ServePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running || h.pause == nil {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	h.pause.Set(req.Paused)
	h.logf("capture_pause run_id=%s paused=%t", h.runID, req.Paused)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"run_id": h.runID, "paused": req.Paused})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req startRunRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	metricInfos, err := resolveMetrics(req.MetricKeys)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meters, err := h.resolveMeters(r.Context(), req.MeterIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(meters) == 0 {
		http.Error(w, "no meters to capture", http.StatusBadRequest)
		return
	}

	queue, err := h.buildQueue(r.Context(), meters, metricInfos)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		http.Error(w, capture.ErrRunInProgress.Error(), http.StatusConflict)
		return
	}
	runID := newRunID()
	cancel := application.NewFlag()
	pause := application.NewFlag()
	h.running = true
	h.runID = runID
	h.cancel = cancel
	h.pause = pause
	h.mu.Unlock()

	observer := h.composeObserver(runID)
	scheduler, err := application.NewScheduler(h.cfg, h.assembler, h.renderer, h.store, observer, cancel, pause, h.logger)
	if err != nil {
		h.finishRun(nil, "")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.runs != nil {
		if err := h.runs.CreateRun(r.Context(), &capturepg.Run{ID: runID, Status: capturepg.RunStatusCreated}); err != nil {
			h.logf("capture_run_create_failed run_id=%s err=%v", runID, err)
		}
	}

	totalMeters := len(capture.GroupByMeter(queue))
	go h.execute(scheduler, runID, queue)

	h.logf("capture_run_accepted run_id=%s meters=%d items=%d", runID, totalMeters, len(queue))
	h.logAudit(r, "capture.start", runID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(startRunResponse{
		RunID:          runID,
		TotalMeters:    totalMeters,
		ChartsPerMeter: h.cfg.ChartsPerMeter,
		TotalCharts:    totalMeters * h.cfg.ChartsPerMeter,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		h.handleGetRun(w, r, id)
		return
	}
	if r.URL.Query().Get("history") != "" {
		h.handleHistory(w, r)
		return
	}

	h.mu.Lock()
	state := runStateResponse{
		Running:   h.running,
		Paused:    h.pause.IsSet(),
		Cancelled: h.cancel.IsSet(),
		RunID:     h.runID,
	}
	if !h.running && h.summary != nil {
		state.RunID = h.summaryID
		state.TotalSuccess = h.summary.TotalSuccess
		state.TotalFailed = h.summary.TotalFailed
		state.Cancelled = h.summary.Cancelled
		state.Results = h.summary.Results
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	if h.runs == nil {
		http.Error(w, "run history unavailable", http.StatusNotFound)
		return
	}
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	results, err := h.runs.ListMeterResults(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"run": run, "results": results})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]capturepg.Run{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

func (h *Handler) resolveMeters(ctx context.Context, ids []string) ([]catalog.Meter, error) {
	if len(ids) == 0 {
		return h.meters.List(ctx)
	}
	meters := make([]catalog.Meter, 0, len(ids))
	for _, id := range ids {
		meter, err := h.meters.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if meter == nil {
			return nil, errors.New("unknown meter: " + id)
		}
		meters = append(meters, *meter)
	}
	return meters, nil
}

func resolveMetrics(keys []string) ([]billing.MetricInfo, error) {
	if len(keys) == 0 {
		return billing.MetricCatalog, nil
	}
	infos := make([]billing.MetricInfo, 0, len(keys))
	for _, key := range keys {
		info, ok := billing.MetricInfoFor(billing.MetricKey(key))
		if !ok {
			return nil, errors.New("unknown metric key: " + key)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (h *Handler) buildQueue(ctx context.Context, meters []catalog.Meter, metricInfos []billing.MetricInfo) ([]capture.QueueItem, error) {
	queue := make([]capture.QueueItem, 0, len(meters)*len(metricInfos))
	for _, meter := range meters {
		docs, err := h.documents.GetDocuments(ctx, meter.ID)
		if err != nil {
			return nil, err
		}
		for _, info := range metricInfos {
			queue = append(queue, capture.QueueItem{
				Meter:     meter,
				Documents: docs,
				MetricKey: info.Key,
				Metric:    info,
			})
		}
	}
	return queue, nil
}

func (h *Handler) composeObserver(runID string) application.Observer {
	recorder := &runRecorder{runID: runID, runs: h.runs}
	observers := []application.Observer{recorder}
	if h.broker != nil {
		observers = append(observers, h.broker)
	}
	if h.observer != nil {
		observers = append(observers, h.observer)
	}
	return application.NewMultiObserver(observers...)
}

func (h *Handler) execute(scheduler *application.Scheduler, runID string, queue []capture.QueueItem) {
	ctx := context.Background()
	started := time.Now().UTC()
	if h.runs != nil {
		if err := h.runs.UpdateRunStatus(ctx, runID, capturepg.RunStatusRunning, "", 0, 0, false, &started, nil); err != nil {
			h.logf("capture_run_update_failed run_id=%s err=%v", runID, err)
		}
	}

	summary, err := scheduler.Run(ctx, queue)

	ended := time.Now().UTC()
	status := capturepg.RunStatusSucceeded
	errMsg := ""
	switch {
	case err != nil:
		status = capturepg.RunStatusFailed
		errMsg = err.Error()
	case summary.Cancelled:
		status = capturepg.RunStatusCancelled
	case summary.TotalFailed > 0:
		status = capturepg.RunStatusFailed
	}

	totalSuccess, totalFailed, cancelled := 0, 0, false
	if summary != nil {
		totalSuccess = summary.TotalSuccess
		totalFailed = summary.TotalFailed
		cancelled = summary.Cancelled
	}
	if h.runs != nil {
		if uerr := h.runs.UpdateRunStatus(ctx, runID, status, errMsg, totalSuccess, totalFailed, cancelled, &started, &ended); uerr != nil {
			h.logf("capture_run_update_failed run_id=%s err=%v", runID, uerr)
		}
	}

	if h.notifier != nil && summary != nil {
		msg := notify.RunMessage{
			RunID:         runID,
			TotalSuccess:  totalSuccess,
			TotalFailed:   totalFailed,
			Cancelled:     cancelled,
			MetersHandled: len(summary.Results),
		}
		for _, result := range summary.Results {
			if result.ChartsFailed > 0 {
				msg.FailedMeters = append(msg.FailedMeters, result.MeterNumber)
			}
		}
		notifyCtx, cancelNotify := context.WithTimeout(context.Background(), 10*time.Second)
		if nerr := h.notifier.Notify(notifyCtx, msg); nerr != nil {
			h.logf("capture_notify_failed run_id=%s err=%v", runID, nerr)
		}
		cancelNotify()
	}

	h.logf("capture_run_finished run_id=%s status=%s success=%d failed=%d cancelled=%t", runID, status, totalSuccess, totalFailed, cancelled)
	h.finishRun(summary, runID)
}

func (h *Handler) finishRun(summary *application.Summary, runID string) {
	h.mu.Lock()
	h.running = false
	h.runID = ""
	h.cancel = nil
	h.pause = nil
	if summary != nil {
		h.summary = summary
		h.summaryID = runID
	}
	h.mu.Unlock()
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

func (h *Handler) logAudit(r *http.Request, action, runID string) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Action:     action,
		TargetType: "capture_run",
		TargetID:   runID,
		RemoteAddr: audit.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
}

// runRecorder persists meter results and nothing else; it piggybacks on
// the observer callbacks so the scheduler stays storage-agnostic.
type runRecorder struct {
	application.NopObserver

	runID string
	runs  *capturepg.Repository

	mu       sync.Mutex
	position int
}

func (rec *runRecorder) OnMeterComplete(result capture.MeterResult) {
	if rec.runs == nil {
		return
	}
	rec.mu.Lock()
	position := rec.position
	rec.position++
	rec.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rec.runs.SaveMeterResult(ctx, rec.runID, position, result)
}

func newRunID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	// UUIDv4 formatting (without external dependency).
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return hex.EncodeToString(buf[:])
}
