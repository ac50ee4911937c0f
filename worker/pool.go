package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/middleware"
	"github.com/gkouam/soulbondai-sub005/queue"
	"github.com/gkouam/soulbondai-sub005/throttle"
)

// errPoolStopped cancels the heartbeat once a graceful stop has drained.
var errPoolStopped = errors.New("worker: pool stopped")

type activeJob struct {
	// lease is a private copy renewed by the heartbeat loop.
	lease  *job.Job
	cancel context.CancelCauseFunc
}

// poolRun is the state of one Start..Stop cycle. A run whose graceful stop
// timed out keeps heartbeating its jobs until the last one returns, while
// the pool may already be running a newer cycle.
type poolRun struct {
	stopClaim context.CancelFunc
	abandon   context.CancelCauseFunc
	wg        sync.WaitGroup
	done      chan struct{}

	activeMu sync.Mutex
	active   map[id.JobID]*activeJob
}

func (r *poolRun) inFlight() int {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	return len(r.active)
}

// Pool manages a set of concurrent worker goroutines that claim jobs from
// the queue and execute them through the Executor.
type Pool struct {
	queue      *queue.Service
	registry   *job.Registry
	executor   *Executor
	throttle   *throttle.Manager
	extensions *ext.Registry
	mws        []middleware.Middleware
	cfg        soulbond.Config
	workerID   id.WorkerID
	logger     *slog.Logger

	mu          sync.Mutex
	cur         *poolRun
	draining    map[*poolRun]struct{}
	concurrency int

	busy atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithThrottle sets per-type concurrency and rate limits.
func WithThrottle(m *throttle.Manager) PoolOption {
	return func(p *Pool) { p.throttle = m }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) PoolOption {
	return func(p *Pool) { p.extensions = r }
}

// WithMiddleware replaces the default middleware chain.
func WithMiddleware(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.mws = mws }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool that drains q using handlers from registry.
// Poll interval, lease, heartbeat and drain settings come from q.Config().
func NewPool(q *queue.Service, registry *job.Registry, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:    q,
		registry: registry,
		cfg:      q.Config(),
		workerID: id.NewWorkerID(),
		logger:   slog.Default(),
		draining: make(map[*poolRun]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.throttle == nil {
		p.throttle = throttle.NewManager()
	}
	if p.mws == nil {
		p.mws = middleware.Default(p.logger)
	}
	p.executor = NewExecutor(registry, q, p.extensions, p.logger, p.mws...)
	return p
}

// OnJob registers a raw handler for jobType.
func (p *Pool) OnJob(jobType string, h job.HandlerFunc) {
	p.registry.Register(jobType, h)
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Busy returns the number of jobs currently executing.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Concurrency returns the number of worker loops of the running pool, or
// zero when stopped.
func (p *Pool) Concurrency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return p.concurrency
}

// Running reports whether the pool has been started and not stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Start launches concurrency worker loops plus the heartbeat loop and
// returns immediately. A non-positive concurrency uses Config.Concurrency.
// Starting a running pool is a no-op. Jobs left running by an earlier stop
// that timed out belong to that earlier run and do not block this one.
func (p *Pool) Start(ctx context.Context, concurrency int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil {
		return nil
	}
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}
	if concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", soulbond.ErrWorkerStartup)
	}

	types := p.cfg.JobTypes
	if len(types) == 0 {
		types = p.registry.Types()
	}
	if len(types) == 0 {
		return fmt.Errorf("%w: no job handlers registered", soulbond.ErrWorkerStartup)
	}
	for _, t := range types {
		if _, ok := p.registry.Get(t); !ok {
			p.logger.Warn("no handler registered for drained job type; its jobs will be dead-lettered",
				slog.String("job_type", t),
			)
		}
	}

	base := context.WithoutCancel(ctx)
	claimCtx, stopClaim := context.WithCancel(queue.WithWorkerID(base, p.workerID))
	hardCtx, abandon := context.WithCancelCause(base)

	r := &poolRun{
		stopClaim: stopClaim,
		abandon:   abandon,
		done:      make(chan struct{}),
		active:    make(map[id.JobID]*activeJob),
	}
	p.cur = r
	p.concurrency = concurrency

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", concurrency),
		slog.Any("job_types", types),
	)

	r.wg.Add(concurrency)
	for range concurrency {
		go p.workerLoop(r, claimCtx, hardCtx, types)
	}
	go func() {
		r.wg.Wait()
		close(r.done)
	}()
	if p.cfg.HeartbeatInterval > 0 {
		go p.heartbeatLoop(hardCtx, r)
	}
	return nil
}

// Stop stops claiming new jobs. With graceful set it waits for running
// jobs up to Config.DrainTimeout or the ctx deadline, whichever is first,
// and returns soulbond.ErrDrainTimeout if they did not finish; handlers are
// never interrupted. Otherwise it cancels handler contexts, including
// those of earlier runs still draining, abandons their leases to expiry
// recovery and returns at once. Stopping a stopped pool returns
// soulbond.ErrNotRunning, except that a non-graceful stop still abandons
// runs left draining by an earlier timeout.
func (p *Pool) Stop(ctx context.Context, graceful bool) error {
	p.mu.Lock()
	r := p.cur
	p.cur = nil
	var lingering []*poolRun
	if !graceful {
		for old := range p.draining {
			lingering = append(lingering, old)
		}
	}
	p.mu.Unlock()

	if r == nil {
		if len(lingering) == 0 {
			return soulbond.ErrNotRunning
		}
		p.abandonRuns(lingering)
		return nil
	}

	p.logger.Info("worker pool stopping",
		slog.String("worker_id", p.workerID.String()),
		slog.Bool("graceful", graceful),
		slog.Int("in_flight", r.inFlight()),
	)
	r.stopClaim()

	if !graceful {
		p.abandonRuns(append(lingering, r))
		return nil
	}

	drainCtx := ctx
	if p.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, p.cfg.DrainTimeout)
		defer cancel()
	}

	select {
	case <-r.done:
		r.abandon(errPoolStopped)
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-drainCtx.Done():
		n := r.inFlight()
		p.logger.Warn("worker pool drain timed out", slog.Int("in_flight", n))
		p.mu.Lock()
		p.draining[r] = struct{}{}
		p.mu.Unlock()
		go func() {
			<-r.done
			r.abandon(errPoolStopped)
			p.mu.Lock()
			delete(p.draining, r)
			p.mu.Unlock()
		}()
		return fmt.Errorf("%w: %d jobs still running", soulbond.ErrDrainTimeout, n)
	}
}

func (p *Pool) abandonRuns(runs []*poolRun) {
	abandoned := 0
	for _, r := range runs {
		abandoned += r.inFlight()
		r.abandon(errAbandoned)
	}
	p.logger.Warn("worker pool stopped without draining",
		slog.Int("abandoned", abandoned),
	)
}

// workerLoop is run by each worker goroutine. claimCtx ends when the pool
// stops claiming; hardCtx ends when running jobs must be abandoned.
func (p *Pool) workerLoop(r *poolRun, claimCtx, hardCtx context.Context, types []string) {
	defer r.wg.Done()

	for claimCtx.Err() == nil {
		reserved := p.throttle.Reserve(types)
		if len(reserved) == 0 {
			p.sleep(claimCtx)
			continue
		}

		j, err := p.queue.Dequeue(claimCtx, reserved)
		if err != nil || j == nil {
			p.throttle.ReleaseExcept(reserved, "")
			if claimCtx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.Error("dequeue error", slog.String("error", err.Error()))
			}
			p.sleep(claimCtx)
			continue
		}

		p.throttle.ReleaseExcept(reserved, j.Type)
		p.run(r, hardCtx, j)
		p.throttle.Release(j.Type)
	}
}

func (p *Pool) run(r *poolRun, hardCtx context.Context, j *job.Job) {
	ctx, cancel := context.WithCancelCause(hardCtx)
	defer cancel(nil)

	p.busy.Add(1)
	defer p.busy.Add(-1)
	r.track(j, cancel)
	defer r.untrack(j.ID)

	if err := p.throttle.Wait(ctx, j.Type); err != nil {
		// Only cancellation ends the wait; the lease is left to expire.
		p.logger.Warn("job abandoned while waiting for rate limit",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
		)
		return
	}

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop renews the lease of every running job until ctx ends.
func (p *Pool) heartbeatLoop(ctx context.Context, r *poolRun) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sendHeartbeats(ctx, r)
		}
	}
}

func (p *Pool) sendHeartbeats(ctx context.Context, r *poolRun) {
	r.activeMu.Lock()
	jobs := make([]*activeJob, 0, len(r.active))
	for _, a := range r.active {
		jobs = append(jobs, a)
	}
	r.activeMu.Unlock()

	for _, a := range jobs {
		err := p.queue.ExtendLease(ctx, a.lease, 0)
		switch {
		case err == nil:
		case errors.Is(err, soulbond.ErrLeaseLost), errors.Is(err, soulbond.ErrJobNotFound):
			p.logger.Warn("lease lost, cancelling job",
				slog.String("job_id", a.lease.ID.String()),
				slog.String("job_type", a.lease.Type),
			)
			a.cancel(soulbond.ErrLeaseLost)
		default:
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", a.lease.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) sleep(ctx context.Context) {
	t := time.NewTimer(p.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (r *poolRun) track(j *job.Job, cancel context.CancelCauseFunc) {
	r.activeMu.Lock()
	r.active[j.ID] = &activeJob{lease: j.Clone(), cancel: cancel}
	r.activeMu.Unlock()
}

func (r *poolRun) untrack(jobID id.JobID) {
	r.activeMu.Lock()
	delete(r.active, jobID)
	r.activeMu.Unlock()
}
