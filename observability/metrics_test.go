package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPublication("accepted")
	m.RecordScheduled("callback", 2)
	m.RecordAttempt("callback", "delivered", 0.1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"herald_publications_total":   false,
		"herald_jobs_scheduled_total": false,
		"herald_job_attempts_total":   false,
		"herald_job_attempt_seconds":  false,
		"herald_pending_jobs":         false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestPendingGaugeTracksLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordScheduled("callback", 3)
	m.RecordAttempt("callback", "retried", 0.2)
	m.RecordAttempt("callback", "delivered", 0.2)
	m.RecordAttempt("callback", "abandoned", 0.2)

	if got := testutil.ToFloat64(m.PendingJobs); got != 1 {
		t.Fatalf("pending = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsAbandonedTotal.WithLabelValues("callback")); got != 1 {
		t.Fatalf("abandoned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobAttemptsTotal.WithLabelValues("callback", "retried")); got != 1 {
		t.Fatalf("retried attempts = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPublication("accepted")
	m.RecordScheduled("callback", 1)
	m.RecordAttempt("callback", "delivered", 0)
}
