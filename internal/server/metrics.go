package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of the solve service.
type Metrics struct {
	started    prometheus.Counter
	finished   *prometheus.CounterVec
	iterations prometheus.Histogram
	duration   prometheus.Histogram
	running    prometheus.Gauge
}

// NewMetrics registers the service collectors with reg. A nil reg creates
// collectors that are not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nlpsolver",
			Name:      "solves_started_total",
			Help:      "Number of accepted solve requests.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlpsolver",
			Name:      "solves_finished_total",
			Help:      "Number of finished solves by outcome.",
		}, []string{"status"}),
		iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nlpsolver",
			Name:      "solve_iterations",
			Help:      "Outer iterations per finished solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nlpsolver",
			Name:      "solve_duration_seconds",
			Help:      "Wall time spent running a solve.",
			Buckets:   prometheus.DefBuckets,
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nlpsolver",
			Name:      "solves_running",
			Help:      "Number of solves currently holding a worker.",
		}),
	}
}
