package queue

import (
	"context"

	"github.com/gkouam/soulbondai-sub005/id"
)

type ctxKey struct{}

// WithWorkerID returns a context whose claims are recorded under wid.
func WithWorkerID(ctx context.Context, wid id.WorkerID) context.Context {
	return context.WithValue(ctx, ctxKey{}, wid)
}

// WorkerIDFrom returns the worker ID carried by ctx.
func WorkerIDFrom(ctx context.Context) (id.WorkerID, bool) {
	wid, ok := ctx.Value(ctxKey{}).(id.WorkerID)
	return wid, ok
}
