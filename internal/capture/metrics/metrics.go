package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	capture "meterscope/internal/capture/domain"
)

// Metrics bundles capture engine metrics.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	ChartsTotal    *prometheus.CounterVec
	MeterDuration  prometheus.Histogram
	RunInProgress  prometheus.Gauge
	PausedGauge    prometheus.Gauge
	ProgressRatio  prometheus.Gauge
	FailedMetrics  prometheus.Counter
	MetersComplete prometheus.Counter
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterscope_capture_runs_total",
				Help: "Total capture runs by outcome",
			},
			[]string{"outcome"},
		),
		ChartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meterscope_capture_charts_total",
				Help: "Total charts processed by status",
			},
			[]string{"status"},
		),
		MeterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meterscope_capture_meter_duration_seconds",
			Help:    "Per-meter capture duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterscope_capture_run_in_progress",
			Help: "Whether a capture run is currently executing",
		}),
		PausedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterscope_capture_paused",
			Help: "Whether the capture run is currently paused",
		}),
		ProgressRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meterscope_capture_progress_ratio",
			Help: "Progress of the current capture run (0-1)",
		}),
		FailedMetrics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterscope_capture_failed_charts_total",
			Help: "Total failed charts across runs",
		}),
		MetersComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterscope_capture_meters_complete_total",
			Help: "Total meters completed across runs",
		}),
	}
	prometheus.MustRegister(
		m.RunsTotal,
		m.ChartsTotal,
		m.MeterDuration,
		m.RunInProgress,
		m.PausedGauge,
		m.ProgressRatio,
		m.FailedMetrics,
		m.MetersComplete,
	)
	return m
}

// Observer adapts Metrics to the capture observer contract, so metric
// updates ride the same callbacks as the UI surfaces.
type Observer struct {
	metrics *Metrics
}

// NewObserver constructs a metrics observer.
func NewObserver(metrics *Metrics) *Observer {
	return &Observer{metrics: metrics}
}

func (o *Observer) OnProgress(current, total int, _, _, _ string) {
	if o == nil || o.metrics == nil || total <= 0 {
		return
	}
	o.metrics.RunInProgress.Set(1)
	o.metrics.ProgressRatio.Set(float64(current) / float64(total))
}

func (o *Observer) OnLogUpdate(entries []capture.LogEntry) {
	if o == nil || o.metrics == nil || len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	switch last.Status {
	case capture.StatusSuccess, capture.StatusFailed:
		o.metrics.ChartsTotal.WithLabelValues(string(last.Status)).Inc()
	}
}

func (o *Observer) OnMeterComplete(result capture.MeterResult) {
	if o == nil || o.metrics == nil {
		return
	}
	o.metrics.MetersComplete.Inc()
	o.metrics.MeterDuration.Observe(float64(result.DurationMs) / 1000)
	if result.ChartsFailed > 0 {
		o.metrics.FailedMetrics.Add(float64(result.ChartsFailed))
	}
}

func (o *Observer) OnComplete(_, totalFailed int, cancelled bool, _ []capture.LogEntry, _ []capture.MeterResult) {
	if o == nil || o.metrics == nil {
		return
	}
	outcome := "succeeded"
	switch {
	case cancelled:
		outcome = "cancelled"
	case totalFailed > 0:
		outcome = "partial"
	}
	o.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	o.metrics.RunInProgress.Set(0)
	o.metrics.ProgressRatio.Set(0)
}

func (o *Observer) OnPauseStateChange(paused bool) {
	if o == nil || o.metrics == nil {
		return
	}
	if paused {
		o.metrics.PausedGauge.Set(1)
	} else {
		o.metrics.PausedGauge.Set(0)
	}
}
