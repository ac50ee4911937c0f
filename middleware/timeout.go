package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gkouam/soulbondai-sub005/job"
)

// Timeout runs the handler under j.Timeout when it is set. A handler that
// fails because its own deadline passed gets an error naming the timeout,
// still matching context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		tctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(tctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Debug("job hit its timeout",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", j.Timeout),
			)
			return fmt.Errorf("job %s exceeded %s timeout: %w", j.Type, j.Timeout, err)
		}
		return err
	}
}
