// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strategy-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backtest metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	TicksProcessed prometheus.Counter
	TradesClosed   *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	StrategyErrors prometheus.Counter

	// Sweep metrics
	SweepsTotal        *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	SweepRunsCompleted prometheus.Counter
	SweepRunsFailed    prometheus.Counter
	SweepProgress      prometheus.Gauge
	SweepBestFitness   prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSweep prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "strategy_lab"
	}

	return &Metrics{
		// Backtest metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of simulated runs by final compliance status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single simulated run in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "ticks_processed_total",
			Help:      "Total number of timestamps processed by the simulator",
		}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_closed_total",
			Help:      "Total number of closed trades by exit reason",
		}, []string{"exit_reason"}),
		Signals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_total",
			Help:      "Total number of strategy signals by outcome",
		}, []string{"outcome"}),
		StrategyErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "strategy_errors_total",
			Help:      "Total number of ticks where the strategy failed",
		}),

		// Sweep metrics
		SweepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "sweeps_total",
			Help:      "Total number of parameter sweeps by status",
		}, []string{"status"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "sweep_duration_seconds",
			Help:      "Parameter sweep duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		SweepRunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_completed_total",
			Help:      "Total number of sweep runs completed",
		}),
		SweepRunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_failed_total",
			Help:      "Total number of sweep runs that failed",
		}),
		SweepProgress: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "progress_ratio",
			Help:      "Fraction of the current sweep completed",
		}),
		SweepBestFitness: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "best_fitness",
			Help:      "Best fitness score of the last finished sweep",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of last successful sweep",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records the outcome of one simulated run.
func RecordRun(r *domain.RunResult, seconds float64) {
	status := string(r.Compliance.Status)
	if r.Failed() {
		status = "failed"
	}
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(seconds)
	DefaultMetrics.TicksProcessed.Add(float64(r.TicksProcessed))
	DefaultMetrics.StrategyErrors.Add(float64(r.StrategyErrors))

	for _, t := range r.Trades {
		DefaultMetrics.TradesClosed.WithLabelValues(string(t.ExitReason)).Inc()
	}
	DefaultMetrics.Signals.WithLabelValues("accepted").Add(float64(r.TotalTrades))
	DefaultMetrics.Signals.WithLabelValues("invalid").Add(float64(r.InvalidSignals))
	DefaultMetrics.Signals.WithLabelValues("ignored").Add(float64(r.IgnoredSignals))
	DefaultMetrics.Signals.WithLabelValues("rejected").Add(float64(r.RejectedSignals))
}

// RecordSweepRun records one finished run of a sweep.
func RecordSweepRun(failed bool) {
	DefaultMetrics.SweepRunsCompleted.Inc()
	if failed {
		DefaultMetrics.SweepRunsFailed.Inc()
	}
}

// UpdateSweepProgress sets the progress gauge.
func UpdateSweepProgress(done, total int) {
	if total <= 0 {
		return
	}
	DefaultMetrics.SweepProgress.Set(float64(done) / float64(total))
}

// RecordSweep records a finished sweep.
func RecordSweep(status string, durationSeconds, bestFitness float64, finishedUnix int64) {
	DefaultMetrics.SweepsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SweepDuration.Observe(durationSeconds)
	DefaultMetrics.SweepBestFitness.Set(bestFitness)
	if status == "ok" {
		DefaultMetrics.LastSuccessfulSweep.Set(float64(finishedUnix))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// NewMux returns an HTTP mux serving /health and /metrics.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", Handler())
	return mux
}
