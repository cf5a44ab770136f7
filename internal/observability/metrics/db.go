package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// registerDBMetrics exposes connection pool statistics as gauges.
func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_open_connections",
				Help: "Open connections in the database pool",
			},
			func() float64 { return float64(db.Stats().OpenConnections) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_in_use_connections",
				Help: "Connections currently in use",
			},
			func() float64 { return float64(db.Stats().InUse) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_idle_connections",
				Help: "Idle connections in the database pool",
			},
			func() float64 { return float64(db.Stats().Idle) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_wait_count",
				Help: "Total number of connection waits",
			},
			func() float64 { return float64(db.Stats().WaitCount) },
		),
	}
	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			if logger != nil {
				logger.Printf("metrics_register_failed err=%v", err)
			}
		}
	}
}
