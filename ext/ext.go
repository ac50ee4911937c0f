// Package ext defines opt-in lifecycle hooks for the queue.
//
// Extensions are notified of job and quota events and react to them, for
// example by recording metrics. Each hook is its own interface so an
// extension implements only the events it cares about:
//
//	type slowJobs struct{ logger *slog.Logger }
//
//	func (s *slowJobs) Name() string { return "slow-jobs" }
//
//	func (s *slowJobs) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    if elapsed > 10*time.Second {
//	        s.logger.Warn("slow job", slog.String("job_type", j.Type))
//	    }
//	    return nil
//	}
//
// Hook errors are logged by the [Registry] and never interrupt the queue.
package ext

import (
	"context"
	"time"

	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is persisted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job is acked.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a failed job is scheduled for another attempt.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, err error, nextAttemptAt time.Time) error
}

// JobDeadLettered is called when a job is moved to the dead letter queue.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, err error) error
}

// LeaseExpired is called when a job is reclaimed because its worker
// stopped renewing the lease.
type LeaseExpired interface {
	OnLeaseExpired(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Admission hooks
// ──────────────────────────────────────────────────

// QuotaChecked is called after every rate-limit decision.
type QuotaChecked interface {
	OnQuotaChecked(ctx context.Context, userID string, tier plan.Tier, resource plan.Resource, d ratelimit.Decision) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called once when the queue manager stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
