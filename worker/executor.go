package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/middleware"
	"github.com/gkouam/soulbondai-sub005/queue"
)

// errAbandoned is the cancellation cause of jobs cut off by a
// non-graceful stop.
var errAbandoned = errors.New("worker: job abandoned on shutdown")

// Executor runs a single leased job through middleware and the registered
// handler, then acks or fails it on the queue.
type Executor struct {
	registry   *job.Registry
	queue      *queue.Service
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	q *queue.Service,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		queue:      q,
		extensions: extensions,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs j. On success the job is acked and JobCompleted is emitted.
// On failure it is failed on the queue, which schedules a retry or
// dead-letters it. If ctx was cancelled because the lease was lost or the
// pool was stopped without draining, the lease is left alone.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Type)
	if !ok {
		err := job.Permanent(fmt.Errorf("%w: %q", soulbond.ErrNoHandler, j.Type))
		return e.handleFailure(context.WithoutCancel(ctx), j, err)
	}

	e.extensions.EmitJobStarted(ctx, j)

	start := time.Now()
	err := e.mw(ctx, j, func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	})
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		if cause := context.Cause(ctx); errors.Is(cause, errAbandoned) || errors.Is(cause, soulbond.ErrLeaseLost) {
			e.logger.Warn("job abandoned, lease left to expire",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.String("cause", cause.Error()),
			)
			return cause
		}
	}

	// Resolution must survive cancellation of the handler context.
	rctx := context.WithoutCancel(ctx)
	if err != nil {
		return e.handleFailure(rctx, j, err)
	}
	return e.handleSuccess(rctx, j, elapsed)
}

func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	if err := e.queue.Ack(ctx, j); err != nil {
		e.logger.Error("failed to ack job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	outcome, err := e.queue.Fail(ctx, j, handlerErr)
	if err != nil {
		e.logger.Error("failed to record job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}
	return fmt.Errorf("%w: %s attempt %d/%d %s: %w",
		soulbond.ErrJobHandlerFailure, j.Type, j.Attempts, j.MaxAttempts, outcome, handlerErr)
}
