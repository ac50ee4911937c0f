package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005/job"
)

// Logging logs the start and end of every execution. Retryable failures
// log at Warn, failures that end the job at Error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_type", j.Type),
			slog.String("job_id", j.ID.String()),
			slog.String("user_id", j.UserID),
			slog.Int("attempt", j.Attempts),
		}
		logger.Debug("job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err == nil {
			logger.Info("job completed", attrs...)
			return nil
		}

		outcome := Outcome(j, err)
		attrs = append(attrs,
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		level := slog.LevelWarn
		if terminal(outcome) {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "job failed", attrs...)
		return err
	}
}
