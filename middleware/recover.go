package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics become errors matching soulbond.ErrJobHandlerFailure and are
// logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_type", j.Type),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("%w: panic in %s: %v", soulbond.ErrJobHandlerFailure, j.Type, r)
			}
		}()
		return next(ctx)
	}
}
