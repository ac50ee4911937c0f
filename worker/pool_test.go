package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/middleware"
	"github.com/gkouam/soulbondai-sub005/queue"
	"github.com/gkouam/soulbondai-sub005/store/memory"
	"github.com/gkouam/soulbondai-sub005/throttle"
	"github.com/gkouam/soulbondai-sub005/worker"
)

func testConfig() soulbond.Config {
	cfg := soulbond.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.LeaseDuration = 5 * time.Second
	cfg.HeartbeatInterval = time.Second
	cfg.DrainTimeout = 5 * time.Second
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	return cfg
}

type fixture struct {
	pool  *worker.Pool
	queue *queue.Service
	store *memory.Store
	reg   *job.Registry
}

func setupTestPool(t *testing.T, cfg soulbond.Config, opts ...worker.PoolOption) *fixture {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	reg := job.NewRegistry()
	extensions := ext.NewRegistry(logger)

	q := queue.New(s,
		queue.WithConfig(cfg),
		queue.WithDLQ(dlq.NewService(s, s)),
		queue.WithExtensions(extensions),
		queue.WithLogger(logger),
	)
	base := []worker.PoolOption{
		worker.WithExtensions(extensions),
		worker.WithLogger(logger),
		worker.WithMiddleware(middleware.Recover(logger), middleware.User(), middleware.Timeout(logger)),
	}
	pool := worker.NewPool(q, reg, append(base, opts...)...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx, false)
	})
	return &fixture{pool: pool, queue: q, store: s, reg: reg}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fixture) count(t *testing.T, jobType string, st job.State) int64 {
	t.Helper()
	stats, err := f.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return stats.Count(jobType, st)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestPool_StartStop(t *testing.T) {
	f := setupTestPool(t, testConfig())
	f.pool.OnJob("noop", func(context.Context, []byte) error { return nil })

	if err := f.pool.Start(context.Background(), 2); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	// Double start should be no-op.
	if err := f.pool.Start(context.Background(), 2); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}
	if got := f.pool.Concurrency(); got != 2 {
		t.Fatalf("Concurrency = %d, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := f.pool.Stop(ctx, true); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	// Stopping again reports the pool is not running.
	if err := f.pool.Stop(ctx, true); !errors.Is(err, soulbond.ErrNotRunning) {
		t.Fatalf("double stop = %v, want ErrNotRunning", err)
	}
	if f.pool.Concurrency() != 0 || f.pool.Running() {
		t.Fatal("pool still reports running after Stop")
	}
}

func TestPool_StartWithoutHandlers(t *testing.T) {
	f := setupTestPool(t, testConfig())
	err := f.pool.Start(context.Background(), 1)
	if !errors.Is(err, soulbond.ErrWorkerStartup) {
		t.Fatalf("err = %v, want ErrWorkerStartup", err)
	}
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

type greeting struct {
	Name string `json:"name"`
}

func TestPool_ProcessesJobs(t *testing.T) {
	f := setupTestPool(t, testConfig())

	var processed atomic.Int64
	def := job.NewDefinition("greet", func(ctx context.Context, p greeting) error {
		if p.Name != "Alice" {
			t.Errorf("payload.Name = %q, want %q", p.Name, "Alice")
		}
		if u, _ := middleware.UserFrom(ctx); u != "u1" {
			t.Errorf("user = %q, want u1", u)
		}
		processed.Add(1)
		return nil
	})
	job.RegisterDefinition(f.reg, def)

	for range 20 {
		if _, err := queue.Enqueue(context.Background(), f.queue, def, greeting{Name: "Alice"}, job.WithUser("u1")); err != nil {
			t.Fatalf("enqueue error: %v", err)
		}
	}

	if err := f.pool.Start(context.Background(), 4); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, "jobs to succeed", func() bool { return f.count(t, "greet", job.StateSucceeded) == 20 })

	if got := processed.Load(); got != 20 {
		t.Fatalf("processed = %d, want 20", got)
	}
}

func TestPool_FailingJobIsRetriedThenDeadLettered(t *testing.T) {
	f := setupTestPool(t, testConfig())

	var calls atomic.Int64
	f.pool.OnJob("flaky", func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("upstream timeout")
	})

	j, err := f.queue.Enqueue(context.Background(), "flaky", nil, job.WithMaxAttempts(3))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, "dead letter", func() bool { return f.count(t, "flaky", job.StateDeadLettered) == 1 })

	if got := calls.Load(); got != 3 {
		t.Fatalf("handler calls = %d, want 3", got)
	}
	entries, _ := f.store.ListDLQ(context.Background(), dlq.ListOpts{})
	if len(entries) != 1 || entries[0].JobID != j.ID || entries[0].Error != "upstream timeout" {
		t.Fatalf("dlq entries = %+v", entries)
	}
}

func TestPool_PanicIsFailure(t *testing.T) {
	f := setupTestPool(t, testConfig())
	f.pool.OnJob("boom", func(context.Context, []byte) error { panic("kaboom") })

	if _, err := f.queue.Enqueue(context.Background(), "boom", nil, job.WithMaxAttempts(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "dead letter", func() bool { return f.count(t, "boom", job.StateDeadLettered) == 1 })
}

func TestPool_UnknownTypeIsDeadLettered(t *testing.T) {
	cfg := testConfig()
	cfg.JobTypes = []string{"known", "ghost"}
	f := setupTestPool(t, cfg)
	f.pool.OnJob("known", func(context.Context, []byte) error { return nil })

	if _, err := f.queue.Enqueue(context.Background(), "ghost", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "dead letter", func() bool { return f.count(t, "ghost", job.StateDeadLettered) == 1 })

	jobs, _ := f.queue.List(context.Background(), job.ListOpts{Type: "ghost"})
	if len(jobs) != 1 || jobs[0].Attempts != 1 {
		t.Fatalf("ghost job = %+v, want a single attempt", jobs)
	}
}

func TestPool_HeartbeatKeepsLease(t *testing.T) {
	cfg := testConfig()
	cfg.LeaseDuration = 100 * time.Millisecond
	cfg.HeartbeatInterval = 20 * time.Millisecond
	f := setupTestPool(t, cfg)

	var calls atomic.Int64
	f.pool.OnJob("long", func(context.Context, []byte) error {
		calls.Add(1)
		time.Sleep(400 * time.Millisecond)
		return nil
	})

	if _, err := f.queue.Enqueue(context.Background(), "long", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.count(t, "long", job.StateSucceeded) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for long job")
		}
		if n, err := f.queue.ReclaimExpired(context.Background()); err != nil || n != 0 {
			t.Fatalf("ReclaimExpired = %d, %v; lease should be renewed", n, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler calls = %d, want 1", got)
	}
}

func TestPool_ThrottleBoundsConcurrency(t *testing.T) {
	f := setupTestPool(t, testConfig(),
		worker.WithThrottle(throttle.NewManager(throttle.Config{JobType: "narrow", MaxConcurrency: 2})))

	var running, peak atomic.Int64
	f.pool.OnJob("narrow", func(context.Context, []byte) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	for range 12 {
		if _, err := f.queue.Enqueue(context.Background(), "narrow", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := f.pool.Start(context.Background(), 8); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "jobs to succeed", func() bool { return f.count(t, "narrow", job.StateSucceeded) == 12 })

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

// ──────────────────────────────────────────────────
// Shutdown
// ──────────────────────────────────────────────────

func TestPool_GracefulStopDrainsInFlight(t *testing.T) {
	f := setupTestPool(t, testConfig())

	release := make(chan struct{})
	f.pool.OnJob("slow", func(context.Context, []byte) error {
		<-release
		return nil
	})

	for range 10 {
		if _, err := f.queue.Enqueue(context.Background(), "slow", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := f.pool.Start(context.Background(), 10); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all jobs running", func() bool { return f.pool.Busy() == 10 })

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	if err := f.pool.Stop(context.Background(), true); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := f.count(t, "slow", job.StateInFlight); got != 0 {
		t.Fatalf("in_flight after graceful stop = %d, want 0", got)
	}
	if got := f.count(t, "slow", job.StateSucceeded); got != 10 {
		t.Fatalf("succeeded = %d, want 10", got)
	}
}

func TestPool_GracefulStopDrainTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	f := setupTestPool(t, cfg)

	release := make(chan struct{})
	defer close(release)
	var interrupted atomic.Bool
	f.pool.OnJob("stuck", func(ctx context.Context, _ []byte) error {
		select {
		case <-release:
		case <-ctx.Done():
			interrupted.Store(true)
		}
		return nil
	})

	if _, err := f.queue.Enqueue(context.Background(), "stuck", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "job running", func() bool { return f.pool.Busy() == 1 })

	err := f.pool.Stop(context.Background(), true)
	if !errors.Is(err, soulbond.ErrDrainTimeout) {
		t.Fatalf("err = %v, want ErrDrainTimeout", err)
	}
	if interrupted.Load() {
		t.Fatal("graceful stop interrupted the handler")
	}
}

func TestPool_RestartAfterDrainTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	f := setupTestPool(t, cfg)

	release := make(chan struct{})
	defer close(release)
	var processed atomic.Int64
	f.pool.OnJob("stuck", func(ctx context.Context, _ []byte) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	f.pool.OnJob("quick", func(context.Context, []byte) error {
		processed.Add(1)
		return nil
	})

	if _, err := f.queue.Enqueue(context.Background(), "stuck", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stuck job running", func() bool { return f.pool.Busy() == 1 })

	if err := f.pool.Stop(context.Background(), true); !errors.Is(err, soulbond.ErrDrainTimeout) {
		t.Fatalf("first stop err = %v, want ErrDrainTimeout", err)
	}

	if err := f.pool.Start(context.Background(), 2); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !f.pool.Running() || f.pool.Concurrency() != 2 {
		t.Fatal("pool not running after restart")
	}
	if _, err := f.queue.Enqueue(context.Background(), "quick", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, "restarted pool processes jobs", func() bool { return processed.Load() == 1 })

	// The stuck handler belongs to the first run and must not hold up
	// draining the second.
	if err := f.pool.Stop(context.Background(), true); err != nil {
		t.Fatalf("second stop err = %v, want nil", err)
	}
	if got := f.pool.Busy(); got != 1 {
		t.Fatalf("Busy = %d, want the 1 stuck job still running", got)
	}
}

func TestPool_NonGracefulStopAbandonsDrainingRun(t *testing.T) {
	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	f := setupTestPool(t, cfg)

	var cancelled atomic.Int64
	f.pool.OnJob("stuck", func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		cancelled.Add(1)
		return ctx.Err()
	})
	if _, err := f.queue.Enqueue(context.Background(), "stuck", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.pool.Start(context.Background(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stuck job running", func() bool { return f.pool.Busy() == 1 })

	if err := f.pool.Stop(context.Background(), true); !errors.Is(err, soulbond.ErrDrainTimeout) {
		t.Fatalf("graceful stop err = %v, want ErrDrainTimeout", err)
	}
	if f.pool.Running() {
		t.Fatal("pool reports running after drain timeout")
	}

	if err := f.pool.Stop(context.Background(), false); err != nil {
		t.Fatalf("non-graceful stop err = %v, want nil", err)
	}
	waitFor(t, "draining handler cancelled", func() bool { return cancelled.Load() == 1 })
	waitFor(t, "draining handler returned", func() bool { return f.pool.Busy() == 0 })

	waitFor(t, "pool fully stopped", func() bool {
		return errors.Is(f.pool.Stop(context.Background(), false), soulbond.ErrNotRunning)
	})
}

func TestPool_NonGracefulStopAbandons(t *testing.T) {
	cfg := testConfig()
	cfg.LeaseDuration = 50 * time.Millisecond
	cfg.HeartbeatInterval = 10 * time.Millisecond
	f := setupTestPool(t, cfg)

	var cancelled atomic.Int64
	f.pool.OnJob("chat", func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		cancelled.Add(1)
		return ctx.Err()
	})

	for range 3 {
		if _, err := f.queue.Enqueue(context.Background(), "chat", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := f.pool.Start(context.Background(), 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "all jobs running", func() bool { return f.pool.Busy() == 3 })

	start := time.Now()
	if err := f.pool.Stop(context.Background(), false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("non-graceful stop took %s", elapsed)
	}
	waitFor(t, "handlers cancelled", func() bool { return cancelled.Load() == 3 })
	waitFor(t, "handlers returned", func() bool { return f.pool.Busy() == 0 })

	// Abandoned jobs keep their lease until it expires.
	if got := f.count(t, "chat", job.StateInFlight); got != 3 {
		t.Fatalf("in_flight = %d, want 3 abandoned", got)
	}

	time.Sleep(60 * time.Millisecond)
	n, err := f.queue.ReclaimExpired(context.Background())
	if err != nil {
		t.Fatalf("ReclaimExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("reclaimed = %d, want 3", n)
	}
}

func TestExecutor_PayloadRoundTrip(t *testing.T) {
	f := setupTestPool(t, testConfig())

	var got greeting
	job.RegisterDefinition(f.reg, job.NewDefinition("greet", func(_ context.Context, p greeting) error {
		got = p
		return nil
	}))

	payload, _ := json.Marshal(greeting{Name: "Bob"})
	if _, err := f.queue.Enqueue(context.Background(), "greet", payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	j, err := f.queue.TryDequeue(context.Background(), []string{"greet"})
	if err != nil || j == nil {
		t.Fatalf("TryDequeue: %v %v", j, err)
	}

	exec := worker.NewExecutor(f.reg, f.queue, nil, slog.Default())
	if err := exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Name != "Bob" {
		t.Fatalf("payload = %+v", got)
	}
	if j.State != job.StateSucceeded {
		t.Fatalf("state = %q, want succeeded", j.State)
	}
}
