package middleware

import (
	"context"
	"log/slog"

	"github.com/gkouam/soulbondai-sub005/job"
)

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the job being executed, and the
// next handler to call.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
// Example: Chain(logging, recover, user) executes as:
//
//	logging → recover → user → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Default returns the standard execution chain: logging, tracing and
// metrics around panic recovery, with the user ID and the per-job timeout
// applied innermost.
func Default(logger *slog.Logger) []Middleware {
	return []Middleware{
		Logging(logger),
		Tracing(),
		Metrics(),
		Recover(logger),
		User(),
		Timeout(logger),
	}
}
