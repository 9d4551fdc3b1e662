package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for video_jobs_total.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
)

type Metrics struct {
	registry *prometheus.Registry

	jobs            *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
	cleanupFailures prometheus.Counter
}

// New registers the collectors on a fresh registry, so several instances
// (one per test) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "video_jobs_total",
			Help: "Processing requests by terminal outcome",
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "video_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage", "result"}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "video_jobs_active",
			Help: "Jobs currently running on this instance",
		}),
		cleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "video_cleanup_failures_total",
			Help: "Scratch cleanups that left files behind",
		}),
	}
}

func (m *Metrics) JobFinished(outcome string) {
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stageDuration.WithLabelValues(stage, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) JobStarted() { m.activeJobs.Inc() }
func (m *Metrics) JobDone()    { m.activeJobs.Dec() }

func (m *Metrics) CleanupFailed() {
	m.cleanupFailures.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
