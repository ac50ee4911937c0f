package middleware

import (
	"context"

	"github.com/gkouam/soulbondai-sub005/job"
)

type userKey struct{}

// User returns middleware that stores the job's user ID in the context so
// handlers can read it with UserFrom.
func User() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.UserID != "" {
			ctx = WithUser(ctx, j.UserID)
		}
		return next(ctx)
	}
}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user ID stored in ctx.
func UserFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok && u != ""
}
