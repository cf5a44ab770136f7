package report

import (
	"errors"
	"net/http"
	"time"

	capturepg "meterscope/internal/capture/infrastructure/postgres"
	"meterscope/internal/observability/metrics"
)

// Handler serves capture run exports.
type Handler struct {
	runs *capturepg.Repository
}

// NewHandler constructs a Handler.
func NewHandler(runs *capturepg.Repository) (*Handler, error) {
	if runs == nil {
		return nil, errors.New("report handler: nil run repository")
	}
	return &Handler{runs: runs}, nil
}

// ServeHTTP handles GET /api/v1/capture/runs/export?id=...&format=pdf|xlsx.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	if format != "pdf" && format != "xlsx" {
		http.Error(w, "format must be pdf or xlsx", http.StatusBadRequest)
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

	started := time.Now()
	var payload []byte
	contentType := "application/pdf"
	filename := "capture-run-" + id + ".pdf"
	if format == "xlsx" {
		payload, err = BuildRunXLSX(run, results)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "capture-run-" + id + ".xlsx"
	} else {
		payload, err = BuildRunPDF(run, results)
	}
	if err != nil {
		metrics.ObserveRunExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveRunExport(format, metrics.ResultSuccess, time.Since(started))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(payload)
}
