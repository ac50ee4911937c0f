// Package ratelimit enforces per-user, per-resource quotas over fixed
// calendar windows.
//
// The check and the increment happen in a single atomic [CounterStore]
// operation, so concurrent requests for the same user can never both pass
// the boundary. Counters live only in the store; the Limiter itself is
// stateless and safe for concurrent use.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/plan"
)

// CounterStore persists quota counters. Implementations must make
// ConsumeQuota a single atomic step: when the stored window start differs
// from windowStart the counter restarts from zero, and the increment only
// happens if the new value would not exceed limit.
type CounterStore interface {
	// ConsumeQuota returns the counter value after the call and whether
	// the increment was applied. resetAt lets stores expire the key.
	ConsumeQuota(ctx context.Context, key string, windowStart, resetAt time.Time, limit int64) (used int64, allowed bool, err error)

	// QuotaUsage returns the counter for key in the given window without
	// consuming. A counter from an older window reads as zero.
	QuotaUsage(ctx context.Context, key string, windowStart time.Time) (int64, error)
}

// Policy decides what happens when the CounterStore is unreachable.
type Policy string

const (
	// FailOpen admits the request and logs a warning.
	FailOpen Policy = "open"
	// FailClosed rejects the request with soulbond.ErrQueueUnavailable.
	FailClosed Policy = "closed"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case FailOpen, FailClosed:
		return p, nil
	}
	return "", fmt.Errorf("ratelimit: unknown failure policy %q", s)
}

// Decision is the outcome of a CheckAndConsume call.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int64         `json:"remaining"`
	Limit      int64         `json:"limit"`
	RetryAfter time.Duration `json:"-"`
	ResetAt    time.Time     `json:"resets_at"`

	// Degraded is set when the store failed and FailOpen admitted the
	// request without counting it.
	Degraded bool `json:"degraded,omitempty"`
}

// RetryAfterSeconds is RetryAfter rounded up to whole seconds (at least 1)
// for denied decisions, and 0 otherwise.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	return soulbond.CeilSeconds(d.RetryAfter)
}

// Usage reports a user's consumption in the current window.
type Usage struct {
	Tier      plan.Tier     `json:"tier"`
	Resource  plan.Resource `json:"resource"`
	Used      int64         `json:"used"`
	Limit     int64         `json:"limit"`
	Remaining int64         `json:"remaining"`
	ResetAt   time.Time     `json:"resets_at"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the quota window. Default: Daily.
func WithWindow(w Window) Option {
	return func(l *Limiter) { l.window = w }
}

// WithPolicy sets the store-failure policy. Default: FailOpen.
func WithPolicy(p Policy) Option {
	return func(l *Limiter) { l.policy = p }
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock overrides time.Now. Used by tests to cross window boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter checks and consumes plan quotas.
type Limiter struct {
	store  CounterStore
	window Window
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Limiter over the given counter store.
func New(store CounterStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		window: Daily,
		policy: FailOpen,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured quota window.
func (l *Limiter) Window() Window { return l.window }

// Policy returns the configured failure policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Key builds the counter key for a user and resource.
func Key(userID string, resource plan.Resource) string {
	return userID + ":" + string(resource)
}

// CheckAndConsume admits or denies one unit of resource for userID under
// plan p. A denied request does not consume. Store failures follow the
// configured Policy.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID string, p plan.Plan, resource plan.Resource) (Decision, error) {
	limit, err := validate(userID, p, resource)
	if err != nil {
		return Decision{}, err
	}

	now := l.now().UTC()
	start, end := l.window.Bounds(now)

	used, allowed, err := l.store.ConsumeQuota(ctx, Key(userID, resource), start, end, limit)
	if err != nil {
		return l.onStoreError(userID, resource, limit, end, err)
	}

	d := Decision{
		Allowed:   allowed,
		Remaining: max(limit-used, 0),
		Limit:     limit,
		ResetAt:   end,
	}
	if !allowed {
		d.Remaining = 0
		d.RetryAfter = end.Sub(now)
	}
	return d, nil
}

// Usage returns current consumption without consuming.
func (l *Limiter) Usage(ctx context.Context, userID string, p plan.Plan, resource plan.Resource) (Usage, error) {
	limit, err := validate(userID, p, resource)
	if err != nil {
		return Usage{}, err
	}
	start, end := l.window.Bounds(l.now())
	used, err := l.store.QuotaUsage(ctx, Key(userID, resource), start)
	if err != nil {
		return Usage{}, soulbond.Unavailable("ratelimit usage", err)
	}
	return Usage{
		Tier:      p.Tier,
		Resource:  resource,
		Used:      used,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetAt:   end,
	}, nil
}

func (l *Limiter) onStoreError(userID string, resource plan.Resource, limit int64, resetAt time.Time, err error) (Decision, error) {
	if l.policy == FailClosed {
		l.logger.Error("rate limit store unavailable, failing closed",
			slog.String("user_id", userID),
			slog.String("resource", string(resource)),
			slog.String("error", err.Error()),
		)
		return Decision{}, soulbond.Unavailable("ratelimit consume", err)
	}
	l.logger.Warn("rate limit store unavailable, failing open",
		slog.String("user_id", userID),
		slog.String("resource", string(resource)),
		slog.String("error", err.Error()),
	)
	return Decision{
		Allowed:   true,
		Remaining: limit,
		Limit:     limit,
		ResetAt:   resetAt,
		Degraded:  true,
	}, nil
}

func validate(userID string, p plan.Plan, resource plan.Resource) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id required", soulbond.ErrInvalidRequest)
	}
	if !p.Tier.Valid() {
		return 0, fmt.Errorf("%w: unknown tier %q", soulbond.ErrInvalidRequest, p.Tier)
	}
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: unknown resource %q", soulbond.ErrInvalidRequest, resource)
	}
	limit, ok := p.Quota(resource)
	if !ok {
		return 0, fmt.Errorf("%w: plan %q has no quota for %q", soulbond.ErrInvalidRequest, p.Tier, resource)
	}
	return limit, nil
}
