package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records execution metadata for scheduled background jobs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of background jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful background job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed background job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (j *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (j *JobMetrics) IncSuccess(job string) {
	if j == nil || j.success == nil {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (j *JobMetrics) IncFailure(job string) {
	if j == nil || j.failure == nil {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// ReservationMetrics tracks the outcome of stock reservation attempts.
type ReservationMetrics struct {
	granted  *prometheus.CounterVec
	denied   *prometheus.CounterVec
	released *prometheus.CounterVec
}

// NewReservationMetrics registers the reservation counters.
func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	if reg == nil {
		return &ReservationMetrics{}
	}
	granted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_granted_total",
		Help: "Stock reservations granted.",
	}, []string{"item"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_denied_total",
		Help: "Stock reservations denied for insufficient stock.",
	}, []string{"item"})
	released := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_released_total",
		Help: "Stock reservations released back to inventory.",
	}, []string{"trigger"})
	reg.MustRegister(granted, denied, released)
	return &ReservationMetrics{granted: granted, denied: denied, released: released}
}

func (r *ReservationMetrics) IncGranted(item string) {
	if r == nil || r.granted == nil {
		return
	}
	r.granted.WithLabelValues(normalizeLabel(item)).Inc()
}

func (r *ReservationMetrics) IncDenied(item string) {
	if r == nil || r.denied == nil {
		return
	}
	r.denied.WithLabelValues(normalizeLabel(item)).Inc()
}

// IncReleased records a release and what triggered it (expiry, compensation, manual).
func (r *ReservationMetrics) IncReleased(trigger string) {
	if r == nil || r.released == nil {
		return
	}
	r.released.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// OutboxMetrics tracks the relay between the outbox table and the broker.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	deadEnded *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publishing counters.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	deadEnded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox events moved to the dead letter table.",
	}, []string{"reason"})
	reg.MustRegister(published, failed, deadEnded)
	return &OutboxMetrics{published: published, failed: failed, deadEnded: deadEnded}
}

func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (o *OutboxMetrics) IncDeadLettered(reason string) {
	if o == nil || o.deadEnded == nil {
		return
	}
	o.deadEnded.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
