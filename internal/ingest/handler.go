package ingest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"meterscope/internal/audit"
	"meterscope/internal/observability/metrics"
)

// Handler serves billing-document CSV uploads.
type Handler struct {
	importer    *Importer
	auditLogger audit.Logger
}

// NewHandler constructs a Handler.
func NewHandler(importer *Importer, auditLogger audit.Logger) (*Handler, error) {
	if importer == nil {
		return nil, errors.New("ingest handler: nil importer")
	}
	return &Handler{importer: importer, auditLogger: auditLogger}, nil
}

// ServeHTTP handles POST /api/v1/ingest/documents with a CSV request body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	started := time.Now()
	result, err := h.importer.ImportCSV(r.Context(), r.Body)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(started))
		metrics.IncIngestError("parse")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(started))
	if result.Failed > 0 {
		metrics.IncIngestError("rows")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)

	if h.auditLogger != nil {
		meta, _ := json.Marshal(result)
		_ = h.auditLogger.Log(r.Context(), audit.Entry{
			Action:     "ingest.documents",
			TargetType: "billing_document",
			Metadata:   meta,
			RemoteAddr: audit.ClientIP(r),
			UserAgent:  r.UserAgent(),
		})
	}
}
