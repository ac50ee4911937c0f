package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/queue"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

// Request describes one unit of user work.
type Request struct {
	UserID   string
	Resource plan.Resource
	Features []plan.Feature

	// JobType and Payload describe the work to enqueue once admitted.
	// An empty JobType makes Admit a pure quota check.
	JobType string
	Payload []byte
	Opts    []job.Option
}

// Result is an admitted request.
type Result struct {
	Job      *job.Job
	Plan     plan.Plan
	Decision ratelimit.Decision
}

// Gate admits requests. It is safe for concurrent use.
type Gate struct {
	plans      plan.Source
	limiter    *ratelimit.Limiter
	queue      *queue.Service
	extensions *ext.Registry
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithExtensions sets the registry notified of every quota decision.
func WithExtensions(r *ext.Registry) Option {
	return func(g *Gate) { g.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// New creates a Gate.
func New(plans plan.Source, limiter *ratelimit.Limiter, q *queue.Service, opts ...Option) *Gate {
	g := &Gate{
		plans:   plans,
		limiter: limiter,
		queue:   q,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Plan resolves the user's current plan. Lookup failures other than a
// missing user match soulbond.ErrQueueUnavailable.
func (g *Gate) Plan(ctx context.Context, userID string) (plan.Plan, error) {
	p, err := g.plans.GetPlan(ctx, userID)
	if err != nil {
		if errors.Is(err, plan.ErrUserRequired) {
			return plan.Plan{}, fmt.Errorf("%w: %w", soulbond.ErrInvalidRequest, err)
		}
		return plan.Plan{}, soulbond.Unavailable("plan lookup", err)
	}
	return p, nil
}

// Admit runs the request through the plan, feature and quota checks and
// enqueues its job. A denied request returns *soulbond.QuotaExceededError
// and enqueues nothing.
func (g *Gate) Admit(ctx context.Context, req Request) (Result, error) {
	p, err := g.Plan(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}

	for _, f := range req.Features {
		if !p.Allows(f) {
			g.logger.Debug("feature not entitled",
				slog.String("user_id", req.UserID),
				slog.String("tier", string(p.Tier)),
				slog.String("feature", string(f)),
			)
			return Result{Plan: p}, fmt.Errorf("%w: %s requires an upgrade from %s",
				soulbond.ErrFeatureNotEntitled, f, p.Tier)
		}
	}

	d, err := g.limiter.CheckAndConsume(ctx, req.UserID, p, req.Resource)
	if err != nil {
		return Result{Plan: p}, err
	}
	g.extensions.EmitQuotaChecked(ctx, req.UserID, p.Tier, req.Resource, d)

	res := Result{Plan: p, Decision: d}
	if !d.Allowed {
		g.logger.Info("quota exceeded",
			slog.String("user_id", req.UserID),
			slog.String("tier", string(p.Tier)),
			slog.String("resource", string(req.Resource)),
			slog.Int64("limit", d.Limit),
			slog.Duration("retry_after", d.RetryAfter),
		)
		return res, &soulbond.QuotaExceededError{
			Resource:   string(req.Resource),
			Limit:      d.Limit,
			Remaining:  d.Remaining,
			RetryAfter: d.RetryAfter,
			ResetAt:    d.ResetAt,
		}
	}

	if req.JobType == "" {
		return res, nil
	}

	opts := append([]job.Option{job.WithUser(req.UserID)}, req.Opts...)
	j, err := g.queue.Enqueue(ctx, req.JobType, req.Payload, opts...)
	if err != nil {
		// The consumed unit is not refunded.
		g.logger.Error("admitted request could not be enqueued",
			slog.String("user_id", req.UserID),
			slog.String("job_type", req.JobType),
			slog.String("error", err.Error()),
		)
		return res, err
	}
	res.Job = j
	return res, nil
}

// Usage reports the user's consumption of resource in the current window.
func (g *Gate) Usage(ctx context.Context, userID string, resource plan.Resource) (ratelimit.Usage, error) {
	p, err := g.Plan(ctx, userID)
	if err != nil {
		return ratelimit.Usage{}, err
	}
	return g.limiter.Usage(ctx, userID, p, resource)
}

// Submit JSON-encodes payload and admits it as a job of def's type, with
// def's default options applied before req.Opts.
func Submit[T any](ctx context.Context, g *Gate, def *job.Definition[T], req Request, payload T) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode %s payload: %w", soulbond.ErrInvalidRequest, def.Type, err)
	}
	req.JobType = def.Type
	req.Payload = data
	req.Opts = append(append([]job.Option{}, def.Opts...), req.Opts...)
	return g.Admit(ctx, req)
}
