package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/queue"
	"github.com/gkouam/soulbondai-sub005/worker"
)

// Manager starts and stops the worker pool and the maintenance loops, and
// reports queue statistics.
type Manager struct {
	queue      *queue.Service
	pool       *worker.Pool
	extensions *ext.Registry
	cfg        soulbond.Config
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.Mutex
	stopLoops   context.CancelFunc
	loops       *errgroup.Group
	running     atomic.Bool
	concurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithExtensions sets the lifecycle hook registry used for the Shutdown
// hook.
func WithExtensions(r *ext.Registry) Option {
	return func(m *Manager) { m.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides time.Now for the janitor cutoff.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager. Intervals and concurrency come from q.Config().
func New(q *queue.Service, pool *worker.Pool, opts ...Option) *Manager {
	m := &Manager{
		queue:  q,
		pool:   pool,
		cfg:    q.Config(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Running reports whether the manager is started.
func (m *Manager) Running() bool { return m.running.Load() }

// Start verifies the store, starts the worker pool and the maintenance
// loops. Failures match soulbond.ErrWorkerStartup. Starting a running
// manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return nil
	}

	if err := m.queue.Store().Ping(ctx); err != nil {
		return fmt.Errorf("%w: store ping: %w", soulbond.ErrWorkerStartup, err)
	}
	if err := m.pool.Start(ctx, m.cfg.Concurrency); err != nil {
		if errors.Is(err, soulbond.ErrWorkerStartup) {
			return err
		}
		return fmt.Errorf("%w: %w", soulbond.ErrWorkerStartup, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(loopCtx)
	m.every(gctx, g, "reaper", m.cfg.ReapInterval, m.reap)
	m.every(gctx, g, "stats", m.cfg.StatsInterval, m.logStats)
	if m.cfg.Retention > 0 {
		m.every(gctx, g, "janitor", m.cfg.JanitorInterval, m.prune)
	}

	m.stopLoops = cancel
	m.loops = g
	m.concurrency = m.pool.Concurrency()
	m.running.Store(true)

	m.logger.Info("queue manager started",
		slog.Int("concurrency", m.concurrency),
		slog.Duration("lease", m.cfg.LeaseDuration),
		slog.Duration("reap_interval", m.cfg.ReapInterval),
	)
	return nil
}

// Stop drains the worker pool, stops the maintenance loops and emits the
// Shutdown hook. It returns soulbond.ErrDrainTimeout if running jobs did
// not finish in time; the manager is stopped either way. Stopping a
// stopped manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running.Load() {
		return nil
	}

	poolErr := m.pool.Stop(ctx, true)

	m.stopLoops()
	if err := m.loops.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("maintenance loop exited with error", slog.String("error", err.Error()))
	}

	m.extensions.EmitShutdown(ctx)
	m.running.Store(false)

	if poolErr != nil {
		m.logger.Warn("queue manager stopped with running jobs", slog.String("error", poolErr.Error()))
		return poolErr
	}
	m.logger.Info("queue manager stopped")
	return nil
}

// GetQueueStats returns counts per job type and state from the store's
// consistent snapshot, plus worker utilization.
func (m *Manager) GetQueueStats(ctx context.Context) (Snapshot, error) {
	st, err := m.queue.Stats(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(st, m.pool.Busy(), m.pool.Concurrency(), m.running.Load()), nil
}

// ReapNow reclaims expired leases once.
func (m *Manager) ReapNow(ctx context.Context) (int, error) {
	return m.queue.ReclaimExpired(ctx)
}

// every runs fn every interval until ctx ends. A non-positive interval
// disables the loop.
func (m *Manager) every(ctx context.Context, g *errgroup.Group, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.logger.Debug("maintenance loop started", slog.String("loop", name), slog.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

func (m *Manager) reap(ctx context.Context) {
	n, err := m.queue.ReclaimExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("reap expired leases", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		m.logger.Info("reclaimed expired leases", slog.Int("count", n))
	}
}

func (m *Manager) logStats(ctx context.Context) {
	snap, err := m.GetQueueStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("queue stats", slog.String("error", err.Error()))
		}
		return
	}

	attrs := []any{
		slog.Int64("total", snap.Total),
		slog.Int64("pending", snap.Totals[job.StatePending]),
		slog.Int64("in_flight", snap.Totals[job.StateInFlight]),
		slog.Int64("failed", snap.Totals[job.StateFailed]),
		slog.Int64("dead_lettered", snap.Totals[job.StateDeadLettered]),
		slog.Int("busy", snap.Workers.Busy),
		slog.Int("concurrency", snap.Workers.Concurrency),
	}
	for jobType, ts := range snap.Types {
		if ts.OldestPendingSeconds > 0 {
			attrs = append(attrs, slog.Float64("oldest_pending_seconds."+jobType, ts.OldestPendingSeconds))
		}
	}
	m.logger.Info("queue stats", attrs...)
}

func (m *Manager) prune(ctx context.Context) {
	cutoff := m.now().UTC().Add(-m.cfg.Retention)
	n, err := m.queue.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("prune succeeded jobs", slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		m.logger.Info("pruned succeeded jobs", slog.Int64("count", n), slog.Time("before", cutoff))
	}
}
