package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records runs of the maintenance worker's scheduled jobs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	released *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	m := &JobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maintenance_job_duration_seconds",
			Help:    "Duration of maintenance jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_job_success_total",
			Help: "Successful maintenance job runs.",
		}, []string{"job"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_job_failure_total",
			Help: "Failed maintenance job runs.",
		}, []string{"job"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_rows_processed_total",
			Help: "Rows released or pruned by maintenance jobs.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure, m.released)
	return m
}

func (m *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (m *JobMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *JobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddProcessed counts rows a job released or deleted. Non-positive counts are ignored.
func (m *JobMetrics) AddProcessed(job string, rows int64) {
	if m == nil || m.released == nil || rows <= 0 {
		return
	}
	m.released.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}
