// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the broker.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the broker's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	PublicationsTotal  *prometheus.CounterVec
	JobsScheduledTotal *prometheus.CounterVec
	JobAttemptsTotal   *prometheus.CounterVec
	JobAttemptSeconds  *prometheus.HistogramVec
	JobsAbandonedTotal *prometheus.CounterVec
	PendingJobs        prometheus.Gauge
}

// NewMetrics creates the broker instruments and registers them on reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PublicationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_publications_total",
			Help: "Publications received, by result.",
		}, []string{"result"}),
		JobsScheduledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_jobs_scheduled_total",
			Help: "Delivery jobs scheduled, by kind.",
		}, []string{"kind"}),
		JobAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_job_attempts_total",
			Help: "Delivery job attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		JobAttemptSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "herald_job_attempt_seconds",
			Help:    "Latency of delivery job attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		JobsAbandonedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herald_jobs_abandoned_total",
			Help: "Delivery jobs abandoned after exhausting retries, by kind.",
		}, []string{"kind"}),
		PendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "herald_pending_jobs",
			Help: "Delivery jobs scheduled but not yet finished.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PublicationsTotal,
			m.JobsScheduledTotal,
			m.JobAttemptsTotal,
			m.JobAttemptSeconds,
			m.JobsAbandonedTotal,
			m.PendingJobs,
		)
	}
	return m
}

// RecordPublication counts one publication with the given result
// ("accepted", "unknown_event", "unauthorized", "error").
func (m *Metrics) RecordPublication(result string) {
	if m == nil {
		return
	}
	m.PublicationsTotal.WithLabelValues(result).Inc()
}

// RecordScheduled counts n newly scheduled jobs of kind.
func (m *Metrics) RecordScheduled(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JobsScheduledTotal.WithLabelValues(kind).Add(float64(n))
	m.PendingJobs.Add(float64(n))
}

// RecordAttempt records one attempt of a job of kind. outcome is
// "delivered", "retried" or "abandoned"; finished attempts leave the pending
// gauge.
func (m *Metrics) RecordAttempt(kind, outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.JobAttemptsTotal.WithLabelValues(kind, outcome).Inc()
	m.JobAttemptSeconds.WithLabelValues(kind).Observe(latencySeconds)
	switch outcome {
	case "delivered":
		m.PendingJobs.Dec()
	case "abandoned":
		m.PendingJobs.Dec()
		m.JobsAbandonedTotal.WithLabelValues(kind).Inc()
	}
}
