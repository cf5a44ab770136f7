package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"meterscope/internal/audit"
	billingpg "meterscope/internal/billing/infrastructure/postgres"
	captureapp "meterscope/internal/capture/application"
	capturepg "meterscope/internal/capture/infrastructure/postgres"
	"meterscope/internal/capture/infrastructure/render"
	"meterscope/internal/capture/infrastructure/storage"
	capturehttp "meterscope/internal/capture/interfaces/http"
	capturemetrics "meterscope/internal/capture/metrics"
	capturenotify "meterscope/internal/capture/notify"
	catalogpg "meterscope/internal/catalog/infrastructure/postgres"
	cataloghttp "meterscope/internal/catalog/interfaces/http"
	"meterscope/internal/ingest"
	"meterscope/internal/observability/metrics"
	reconpg "meterscope/internal/recon/infrastructure/postgres"
	"meterscope/internal/report"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	clientRepo := catalogpg.NewClientRepository(db)
	siteRepo := catalogpg.NewSiteRepository(db)
	meterRepo := catalogpg.NewMeterRepository(db)
	documentRepo := billingpg.NewDocumentRepository(db)
	reconRepo := reconpg.NewRunRepository(db)

	captureCfg, err := captureapp.LoadConfig()
	if err != nil {
		logger.Fatalf("capture config error: %v", err)
	}

	assembler, err := captureapp.NewAssembler(reconRepo)
	if err != nil {
		logger.Fatalf("assembler error: %v", err)
	}
	chartStore, err := storage.NewFilesystemStore(captureCfg.StorageRoot)
	if err != nil {
		logger.Fatalf("chart store error: %v", err)
	}
	captureRuns := capturepg.NewRepository(db)

	metricsObserver := capturemetrics.NewObserver(capturemetrics.New())

	var notifier capturenotify.Notifier
	if captureCfg.WebhookURL != "" {
		notifier = capturenotify.NewWebhookNotifier(captureCfg.WebhookURL)
	}

	broker := capturehttp.NewSSEBroker()
	captureHandler, err := capturehttp.NewHandler(
		captureCfg,
		assembler,
		render.NewPDFRenderer(),
		chartStore,
		meterRepo,
		documentRepo,
		captureRuns,
		notifier,
		broker,
		metricsObserver,
		auditRepo,
		logger,
	)
	if err != nil {
		logger.Fatalf("capture handler error: %v", err)
	}

	catalogHandler, err := cataloghttp.NewHandler(clientRepo, siteRepo, meterRepo, auditRepo)
	if err != nil {
		logger.Fatalf("catalog handler error: %v", err)
	}

	importer, err := ingest.NewImporter(documentRepo, meterRepo)
	if err != nil {
		logger.Fatalf("importer error: %v", err)
	}
	ingestHandler, err := ingest.NewHandler(importer, auditRepo)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}

	reportHandler, err := report.NewHandler(captureRuns)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/clients", catalogHandler.ServeClients)
	mux.HandleFunc("/api/v1/clients/", catalogHandler.ServeClients)
	mux.HandleFunc("/api/v1/sites", catalogHandler.ServeSites)
	mux.HandleFunc("/api/v1/sites/", catalogHandler.ServeSites)
	mux.HandleFunc("/api/v1/meters", catalogHandler.ServeMeters)
	mux.HandleFunc("/api/v1/meters/", catalogHandler.ServeMeters)
	mux.Handle("/api/v1/ingest/documents", ingestHandler)
	mux.HandleFunc("/api/v1/capture/runs", captureHandler.ServeRuns)
	mux.HandleFunc("/api/v1/capture/runs/cancel", captureHandler.ServeCancel)
	mux.HandleFunc("/api/v1/capture/runs/pause", captureHandler.ServePause)
	mux.Handle("/api/v1/capture/runs/export", reportHandler)
	mux.Handle("/api/v1/capture/stream", capturehttp.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		elapsed := time.Since(start)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, elapsed)
		metrics.ObserveHTTP(r.URL.Path, strconv.Itoa(resp.status/100)+"xx", elapsed)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
