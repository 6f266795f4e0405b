// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "backtester"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Backtest metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	Rebalances       *prometheus.CounterVec
	LastFinalValue   *prometheus.GaugeVec
	LastRunTimestamp prometheus.Gauge

	// History metrics
	ObservationsImported *prometheus.CounterVec
	ImportErrors         *prometheus.CounterVec

	// Reliability metrics
	BackupsTotal      *prometheus.CounterVec
	BackupSizeBytes   prometheus.Gauge
	LastBackupSuccess prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry,
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Backtest metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by signal mode and status",
		}, []string{"signal_mode", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"signal_mode"}),
		Rebalances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backtest",
			Name:      "rebalances_total",
			Help:      "Total number of rebalances by weighting rule",
		}, []string{"weighting"}),
		LastFinalValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "backtest",
			Name:      "last_final_value",
			Help:      "Final index value of the most recent run",
		}, []string{"signal_mode"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),

		// History metrics
		ObservationsImported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "history",
			Name:      "observations_imported_total",
			Help:      "Total number of observations imported by panel kind",
		}, []string{"kind"}),
		ImportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "history",
			Name:      "import_errors_total",
			Help:      "Total number of failed imports by panel kind",
		}, []string{"kind"}),

		// Reliability metrics
		BackupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Total number of backup attempts by status",
		}, []string{"status"}),
		BackupSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "backup",
			Name:      "last_size_bytes",
			Help:      "Size of the most recent backup archive",
		}),
		LastBackupSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "last_successful_backup_timestamp",
			Help:      "Unix timestamp of last successful backup",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a finished backtest run. err non-nil marks a failure.
func (m *Metrics) RecordRun(signalMode string, duration time.Duration, finalValue float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(signalMode, status).Inc()
	m.RunDuration.WithLabelValues(signalMode).Observe(duration.Seconds())
	if err == nil {
		m.LastFinalValue.WithLabelValues(signalMode).Set(finalValue)
		m.LastRunTimestamp.SetToCurrentTime()
	}
}

// RecordRebalance counts one rebalance under its weighting rule.
func (m *Metrics) RecordRebalance(weighting string) {
	m.Rebalances.WithLabelValues(weighting).Inc()
}

// RecordImport records a panel import.
func (m *Metrics) RecordImport(kind string, observations int, err error) {
	if err != nil {
		m.ImportErrors.WithLabelValues(kind).Inc()
		return
	}
	m.ObservationsImported.WithLabelValues(kind).Add(float64(observations))
}

// RecordBackup records a backup attempt.
func (m *Metrics) RecordBackup(sizeBytes int64, err error) {
	if err != nil {
		m.BackupsTotal.WithLabelValues("error").Inc()
		return
	}
	m.BackupsTotal.WithLabelValues("success").Inc()
	m.BackupSizeBytes.Set(float64(sizeBytes))
	m.LastBackupSuccess.SetToCurrentTime()
}
