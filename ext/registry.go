package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Extensions are sorted into per-hook slices at registration time so
// emitting only iterates over those that implement the hook.
//
// A nil *Registry is valid and drops every event.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued     []entry[JobEnqueued]
	jobStarted      []entry[JobStarted]
	jobCompleted    []entry[JobCompleted]
	jobRetrying     []entry[JobRetrying]
	jobDeadLettered []entry[JobDeadLettered]
	leaseExpired    []entry[LeaseExpired]
	quotaChecked    []entry[QuotaChecked]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, entry[JobRetrying]{name, h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, entry[JobDeadLettered]{name, h})
	}
	if h, ok := e.(LeaseExpired); ok {
		r.leaseExpired = append(r.leaseExpired, entry[LeaseExpired]{name, h})
	}
	if h, ok := e.(QuotaChecked); ok {
		r.quotaChecked = append(r.quotaChecked, entry[QuotaChecked]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobEnqueued {
		r.check("OnJobEnqueued", e.name, e.hook.OnJobEnqueued(ctx, j))
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobStarted {
		r.check("OnJobStarted", e.name, e.hook.OnJobStarted(ctx, j))
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	if r == nil {
		return
	}
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, jobErr error, next time.Time) {
	if r == nil {
		return
	}
	for _, e := range r.jobRetrying {
		r.check("OnJobRetrying", e.name, e.hook.OnJobRetrying(ctx, j, jobErr, next))
	}
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, jobErr error) {
	if r == nil {
		return
	}
	for _, e := range r.jobDeadLettered {
		r.check("OnJobDeadLettered", e.name, e.hook.OnJobDeadLettered(ctx, j, jobErr))
	}
}

// EmitLeaseExpired notifies all extensions that implement LeaseExpired.
func (r *Registry) EmitLeaseExpired(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.leaseExpired {
		r.check("OnLeaseExpired", e.name, e.hook.OnLeaseExpired(ctx, j))
	}
}

// EmitQuotaChecked notifies all extensions that implement QuotaChecked.
func (r *Registry) EmitQuotaChecked(ctx context.Context, userID string, tier plan.Tier, resource plan.Resource, d ratelimit.Decision) {
	if r == nil {
		return
	}
	for _, e := range r.quotaChecked {
		r.check("OnQuotaChecked", e.name, e.hook.OnQuotaChecked(ctx, userID, tier, resource, d))
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a warning when a hook returns an error. Hook errors never
// propagate.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
