package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.ObserveDuration("stale-cart-release", 40*time.Millisecond)
	m.IncSuccess("stale-cart-release")
	m.IncFailure("")
	m.AddProcessed("outbox-retention", 12)
	m.AddProcessed("outbox-retention", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	assertCounter(t, mfs, "maintenance_job_success_total", map[string]string{"job": "stale-cart-release"}, 1)
	assertCounter(t, mfs, "maintenance_job_failure_total", map[string]string{"job": "unknown"}, 1)
	assertCounter(t, mfs, "maintenance_rows_processed_total", map[string]string{"job": "outbox-retention"}, 12)

	mf := findMetricFamily(mfs, "maintenance_job_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one duration sample")
	}
}

func TestNilJobMetricsAreNoops(t *testing.T) {
	var m *JobMetrics
	m.IncSuccess("x")
	m.AddProcessed("x", 3)
	NewJobMetrics(nil).ObserveDuration("x", time.Second)
}
