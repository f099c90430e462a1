// Package metrics defines Prometheus collectors for projection runs and sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks completed optimization runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedscope_runs_total",
			Help: "The total number of completed optimization runs",
		},
		[]string{"engine", "reason"},
	)

	// RunIterations tracks how many steps a run took
	RunIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedscope_run_iterations",
			Help:    "The number of iterations per optimization run",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
		},
		[]string{"engine"},
	)

	// RunDuration tracks wall time of a run
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedscope_run_duration_seconds",
			Help:    "The duration of optimization runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // From 1ms to ~33s
		},
		[]string{"engine"},
	)

	// DatasetSize tracks the number of points per run
	DatasetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedscope_dataset_points",
			Help:    "The number of points projected per run",
			Buckets: prometheus.ExponentialBuckets(4, 2, 12), // From 4 to ~8k points
		},
	)

	// FocusEvents tracks session transitions
	FocusEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedscope_session_events_total",
			Help: "The total number of focus, narrow and reset events",
		},
		[]string{"event"},
	)

	// ActiveSessions tracks sessions held in memory
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedscope_active_sessions",
			Help: "Current number of explorer sessions in memory",
		},
	)
)

// ObserveRun records one finished run
func ObserveRun(engine, reason string, iterations, points int, elapsed time.Duration) {
	RunsTotal.WithLabelValues(engine, reason).Inc()
	RunIterations.WithLabelValues(engine).Observe(float64(iterations))
	RunDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
	DatasetSize.Observe(float64(points))
}
