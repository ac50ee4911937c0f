package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

const namespace = "soulbond"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.LeaseExpired    = (*MetricsExtension)(nil)
	_ ext.QuotaChecked    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters. Register it on the
// ext.Registry shared by the queue and the worker pool.
type MetricsExtension struct {
	JobsEnqueued     *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	JobsRetried      *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	LeasesExpired    *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	QuotaDecisions   *prometheus.CounterVec
}

// NewMetricsExtension registers the counters on reg.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	f := promauto.With(reg)
	return &MetricsExtension{
		JobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs enqueued",
		}, []string{"type"}),
		JobsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that succeeded",
		}, []string{"type"}),
		JobsRetried: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Total number of failed attempts scheduled for retry",
		}, []string{"type"}),
		JobsDeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Total number of jobs moved to the dead letter queue",
		}, []string{"type"}),
		LeasesExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_expired_total",
			Help:      "Total number of jobs reclaimed after their lease expired",
		}, []string{"type"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Execution time of successful jobs",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"type"}),
		QuotaDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Rate limit decisions by tier, resource and outcome",
		}, []string{"tier", "resource", "outcome"}),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "prometheus-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	m.JobsEnqueued.WithLabelValues(j.Type).Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobsCompleted.WithLabelValues(j.Type).Inc()
	m.JobDuration.WithLabelValues(j.Type).Observe(elapsed.Seconds())
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, j *job.Job, _ error, _ time.Time) error {
	m.JobsRetried.WithLabelValues(j.Type).Inc()
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(_ context.Context, j *job.Job, _ error) error {
	m.JobsDeadLettered.WithLabelValues(j.Type).Inc()
	return nil
}

// OnLeaseExpired implements ext.LeaseExpired.
func (m *MetricsExtension) OnLeaseExpired(_ context.Context, j *job.Job) error {
	m.LeasesExpired.WithLabelValues(j.Type).Inc()
	return nil
}

// OnQuotaChecked implements ext.QuotaChecked.
func (m *MetricsExtension) OnQuotaChecked(_ context.Context, _ string, tier plan.Tier, resource plan.Resource, d ratelimit.Decision) error {
	outcome := "allowed"
	switch {
	case d.Degraded:
		outcome = "degraded"
	case !d.Allowed:
		outcome = "denied"
	}
	m.QuotaDecisions.WithLabelValues(string(tier), string(resource), outcome).Inc()
	return nil
}
