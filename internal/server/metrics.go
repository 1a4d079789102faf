package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "lgadock"

// Metrics holds the Prometheus collectors of the job server. Every server
// owns its registry so that tests can create servers freely.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations prometheus.Counter
	Generations prometheus.Counter
	JobsTotal   *prometheus.CounterVec
	Jobs        *prometheus.GaugeVec
	BestEnergy  *prometheus.GaugeVec
	JobDuration prometheus.Histogram
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evaluations_total",
			Help:      "Energy evaluations performed by all jobs.",
		}),
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "generations_total",
			Help:      "Run generations completed by all jobs.",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"state"}),
		Jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "jobs",
			Help:      "Current number of jobs by state.",
		}, []string{"state"}),
		BestEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "best_energy_kcal_mol",
			Help:      "Lowest energy found so far per job.",
		}, []string{"job_id"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.Evaluations,
		m.Generations,
		m.JobsTotal,
		m.Jobs,
		m.BestEnergy,
		m.JobDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// setJobCounts refreshes the jobs-by-state gauge.
func (m *Metrics) setJobCounts(counts map[JobState]int) {
	for state, n := range counts {
		m.Jobs.WithLabelValues(string(state)).Set(float64(n))
	}
}

// jobFinished records a job reaching a terminal state.
func (m *Metrics) jobFinished(state JobState, elapsed time.Duration) {
	m.JobsTotal.WithLabelValues(string(state)).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}
