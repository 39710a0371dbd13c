// Package metrics exposes prometheus instrumentation for the
// minimization service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MinimizationsStarted counts jobs accepted by the server.
	MinimizationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narvik_minimizations_started_total",
		Help: "Number of minimization jobs started.",
	})

	// MinimizationsFinished counts terminal job outcomes by status.
	MinimizationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narvik_minimizations_finished_total",
		Help: "Number of minimization jobs finished, by terminal status.",
	}, []string{"status"})

	// OuterIterations observes outer Newton iterations per finished job.
	OuterIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "narvik_outer_iterations",
		Help:    "Outer Newton iterations per finished minimization.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// Duration observes wall-clock job duration in seconds.
	Duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "narvik_minimization_duration_seconds",
		Help:    "Wall-clock duration of finished minimizations.",
		Buckets: prometheus.DefBuckets,
	})
)
