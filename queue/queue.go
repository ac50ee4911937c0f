package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/backoff"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
)

// reapBatch bounds the number of expired leases fetched per store call.
const reapBatch = 100

// Outcome is the effect of a Fail call.
type Outcome string

const (
	// OutcomeRetried means the job was rescheduled.
	OutcomeRetried Outcome = "retried"
	// OutcomeDeadLettered means the job reached a terminal failure.
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Service is the job queue. It is safe for concurrent use.
type Service struct {
	store      job.Store
	dlq        *dlq.Service
	backoff    backoff.Strategy
	extensions *ext.Registry
	cfg        soulbond.Config
	logger     *slog.Logger
	now        func() time.Time
	workerID   id.WorkerID

	mu     sync.Mutex
	notify chan struct{}
}

// New creates a queue Service over store.
func New(store job.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cfg:      soulbond.DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
		workerID: id.NewWorkerID(),
		notify:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff == nil {
		s.backoff = backoff.NewExponential(s.cfg.BackoffBase, s.cfg.BackoffMax)
	}
	if s.cfg.PollInterval <= 0 {
		s.cfg.PollInterval = time.Second
	}
	if s.cfg.LeaseDuration <= 0 {
		s.cfg.LeaseDuration = 30 * time.Second
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() soulbond.Config { return s.cfg }

// DLQ returns the dead letter service, or nil.
func (s *Service) DLQ() *dlq.Service { return s.dlq }

// Store returns the underlying job store.
func (s *Service) Store() job.Store { return s.store }

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

// Enqueue persists a new pending job and wakes blocked dequeuers.
func (s *Service) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: job type is required", soulbond.ErrInvalidRequest)
	}

	base := job.DefaultOptions()
	if s.cfg.MaxAttempts > 0 {
		base.MaxAttempts = s.cfg.MaxAttempts
	}
	j := job.New(jobType, payload, job.Apply(base, opts...), s.now())

	if err := s.store.EnqueueJob(ctx, j); err != nil {
		if errors.Is(err, soulbond.ErrJobAlreadyExists) {
			return nil, err
		}
		return nil, soulbond.Unavailable("enqueue", err)
	}

	s.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("user_id", j.UserID),
	)
	s.extensions.EmitJobEnqueued(ctx, j)
	s.wake()
	return j, nil
}

// Enqueue marshals payload as JSON and enqueues it under the definition's
// type. Options given here win over the definition's defaults.
func Enqueue[T any](ctx context.Context, s *Service, def *job.Definition[T], payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s payload: %w", soulbond.ErrInvalidRequest, def.Type, err)
	}
	all := make([]job.Option, 0, len(def.Opts)+len(opts))
	all = append(all, def.Opts...)
	all = append(all, opts...)
	return s.Enqueue(ctx, def.Type, data, all...)
}

// ──────────────────────────────────────────────────
// Dequeue
// ──────────────────────────────────────────────────

// Dequeue blocks until a job of one of types is claimable and returns it
// under a fresh lease. It returns nil and ctx.Err() when ctx ends first.
func (s *Service) Dequeue(ctx context.Context, types []string) (*job.Job, error) {
	for {
		// Grab the wake channel before looking, so an enqueue racing with
		// an empty claim is not missed.
		wake := s.waitCh()

		j, err := s.TryDequeue(ctx, types)
		if err != nil || j != nil {
			return j, err
		}

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// TryDequeue claims one due job without blocking. It returns nil, nil when
// nothing is due.
func (s *Service) TryDequeue(ctx context.Context, types []string) (*job.Job, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no job types to dequeue", soulbond.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wid, ok := WorkerIDFrom(ctx)
	if !ok {
		wid = s.workerID
	}
	now := s.now().UTC()
	j, err := s.store.ClaimJob(ctx, types, job.Claim{
		WorkerID:   wid,
		Token:      id.NewLeaseToken(),
		Now:        now,
		LeaseUntil: now.Add(s.cfg.LeaseDuration),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, soulbond.Unavailable("dequeue", err)
	}
	return j, nil
}

func (s *Service) waitCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

func (s *Service) wake() {
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// ──────────────────────────────────────────────────
// Lease resolution
// ──────────────────────────────────────────────────

// Ack marks the leased job succeeded.
func (s *Service) Ack(ctx context.Context, j *job.Job) error {
	now := s.now().UTC()
	if err := s.resolve(ctx, j, job.Resolution{State: job.StateSucceeded, At: now}); err != nil {
		return err
	}
	j.State = job.StateSucceeded
	j.FinishedAt = &now
	j.LastError = ""
	return nil
}

// Fail records a failed attempt. The job is rescheduled with backoff while
// attempts remain and err is not permanent; otherwise it is dead-lettered
// and copied to the DLQ.
func (s *Service) Fail(ctx context.Context, j *job.Job, jobErr error) (Outcome, error) {
	if jobErr == nil {
		jobErr = errors.New("unknown error")
	}
	now := s.now().UTC()
	msg := jobErr.Error()

	if j.Attempts < j.MaxAttempts && !job.IsPermanent(jobErr) {
		delay := s.backoff.Delay(j.Attempts)
		next := now.Add(delay)
		if err := s.resolve(ctx, j, job.Resolution{
			State:     job.StateFailed,
			NotBefore: next,
			LastError: msg,
			At:        now,
		}); err != nil {
			return "", err
		}
		j.State = job.StateFailed
		j.NotBefore = next
		j.LastError = msg

		s.extensions.EmitJobRetrying(ctx, j, jobErr, next)
		s.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Duration("delay", delay),
		)
		return OutcomeRetried, nil
	}

	if err := s.resolve(ctx, j, job.Resolution{
		State:     job.StateDeadLettered,
		LastError: msg,
		At:        now,
	}); err != nil {
		return "", err
	}
	j.State = job.StateDeadLettered
	j.FinishedAt = &now
	j.LastError = msg

	if s.dlq != nil {
		if _, err := s.dlq.Push(ctx, j, jobErr); err != nil {
			s.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.extensions.EmitJobDeadLettered(ctx, j, jobErr)
	s.logger.Warn("job moved to DLQ after exhausting attempts",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("attempts", j.Attempts),
		slog.String("error", msg),
	)
	return OutcomeDeadLettered, nil
}

// ExtendLease renews the lease on j for d from now. A non-positive d uses
// the configured lease duration.
func (s *Service) ExtendLease(ctx context.Context, j *job.Job, d time.Duration) error {
	if d <= 0 {
		d = s.cfg.LeaseDuration
	}
	until := s.now().UTC().Add(d)
	if err := s.store.ExtendLease(ctx, j.ID, j.LeaseToken, until); err != nil {
		return leaseErr("extend lease", err)
	}
	j.LeaseExpiresAt = &until
	return nil
}

func (s *Service) resolve(ctx context.Context, j *job.Job, r job.Resolution) error {
	if err := s.store.ResolveJob(ctx, j.ID, j.LeaseToken, r); err != nil {
		return leaseErr("resolve", err)
	}
	j.LeaseToken = ""
	j.LeaseExpiresAt = nil
	j.UpdatedAt = r.At
	return nil
}

func leaseErr(op string, err error) error {
	switch {
	case errors.Is(err, soulbond.ErrLeaseLost),
		errors.Is(err, soulbond.ErrJobNotFound),
		errors.Is(err, soulbond.ErrInvalidState):
		return err
	default:
		return soulbond.Unavailable(op, err)
	}
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// ReclaimExpired fails every in-flight job whose lease has run out, as if
// its handler had returned ErrLeaseExpired. It returns how many jobs it
// reclaimed.
func (s *Service) ReclaimExpired(ctx context.Context) (int, error) {
	reclaimed := 0
	for {
		expired, err := s.store.ExpiredLeases(ctx, s.now().UTC(), reapBatch)
		if err != nil {
			return reclaimed, soulbond.Unavailable("expired leases", err)
		}

		progress := 0
		for _, j := range expired {
			if _, err := s.Fail(ctx, j, soulbond.ErrLeaseExpired); err != nil {
				if errors.Is(err, soulbond.ErrLeaseLost) || errors.Is(err, soulbond.ErrJobNotFound) {
					// Resolved by its worker or another reaper meanwhile.
					continue
				}
				return reclaimed, err
			}
			progress++
			s.extensions.EmitLeaseExpired(ctx, j)
			s.logger.Warn("reclaimed job with expired lease",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.String("worker_id", j.WorkerID.String()),
			)
		}
		reclaimed += progress

		if len(expired) < reapBatch || progress == 0 {
			if reclaimed > 0 {
				s.wake()
			}
			return reclaimed, nil
		}
	}
}

// Stats returns per-type, per-state counts.
func (s *Service) Stats(ctx context.Context) (job.Stats, error) {
	st, err := s.store.JobStats(ctx, s.now().UTC())
	if err != nil {
		return job.Stats{}, soulbond.Unavailable("stats", err)
	}
	return st, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, soulbond.ErrJobNotFound) {
			return nil, err
		}
		return nil, soulbond.Unavailable("get job", err)
	}
	return j, nil
}

// List returns jobs matching opts.
func (s *Service) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	jobs, err := s.store.ListJobs(ctx, opts)
	if err != nil {
		return nil, soulbond.Unavailable("list jobs", err)
	}
	return jobs, nil
}

// Prune deletes succeeded jobs that finished before the cutoff.
func (s *Service) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.PruneJobs(ctx, before)
	if err != nil {
		return 0, soulbond.Unavailable("prune", err)
	}
	return n, nil
}

// Replay enqueues a fresh copy of a dead-lettered job.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	if s.dlq == nil {
		return nil, fmt.Errorf("%w: dead letter queue not configured", soulbond.ErrStoreRequired)
	}
	j, err := s.dlq.Replay(ctx, entryID)
	if err != nil && j == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Error("replayed job enqueued but entry not marked",
			slog.String("dlq_id", entryID.String()),
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("dlq entry replayed",
		slog.String("dlq_id", entryID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
	)
	s.extensions.EmitJobEnqueued(ctx, j)
	s.wake()
	return j, nil
}
