package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return soulbond.ErrJobAlreadyExists
		}
		return fmt.Errorf("soulbond/bun: enqueue job: %w", err)
	}
	return nil
}

// ClaimJob leases the oldest due job among types. The inner SELECT locks
// one row with SKIP LOCKED, so concurrent claimers never see the same job.
func (s *Store) ClaimJob(ctx context.Context, types []string, c job.Claim) (*job.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	var models []jobModel
	_, err := s.db.NewRaw(`
		UPDATE soulbond_jobs
		SET state = 'in_flight',
		    attempts = attempts + 1,
		    worker_id = ?0,
		    lease_token = ?1,
		    lease_expires_at = ?2,
		    started_at = ?3,
		    updated_at = ?3
		WHERE id = (
			SELECT id FROM soulbond_jobs
			WHERE state IN ('pending', 'failed')
			  AND type = ANY(?4)
			  AND not_before <= ?3
			ORDER BY not_before ASC, enqueued_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING *`,
		c.WorkerID.String(), c.Token, c.LeaseUntil.UTC(), c.Now.UTC(), pgdialect.Array(types),
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("soulbond/bun: claim job: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return fromJobModel(&models[0])
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, soulbond.ErrJobNotFound
		}
		return nil, fmt.Errorf("soulbond/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ExtendLease pushes the lease expiry forward for the token holder.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, token string, until time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("soulbond_jobs").
		Set("lease_expires_at = ?", until.UTC()).
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Where("state = 'in_flight'").
		Where("lease_token = ?", token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: extend lease: %w", err)
	}
	return s.leaseResult(ctx, jobID, res)
}

// ResolveJob releases the lease held by token and applies r.
func (s *Store) ResolveJob(ctx context.Context, jobID id.JobID, token string, r job.Resolution) error {
	q := s.db.NewUpdate().
		TableExpr("soulbond_jobs").
		Set("state = ?", string(r.State)).
		Set("lease_token = NULL").
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", r.At.UTC())

	switch r.State {
	case job.StateSucceeded, job.StateDeadLettered:
		q = q.Set("finished_at = ?", r.At.UTC())
	case job.StateFailed:
		q = q.Set("not_before = ?", r.NotBefore.UTC())
	default:
		return soulbond.ErrInvalidState
	}
	if r.LastError != "" {
		q = q.Set("last_error = ?", r.LastError)
	}

	res, err := q.
		Where("id = ?", jobID.String()).
		Where("state = 'in_flight'").
		Where("lease_token = ?", token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: resolve job: %w", err)
	}
	return s.leaseResult(ctx, jobID, res)
}

// leaseResult maps a guarded update that touched no row to ErrJobNotFound
// or ErrLeaseLost.
func (s *Store) leaseResult(ctx context.Context, jobID id.JobID, res rowsAffected) error {
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().TableExpr("soulbond_jobs").
		Where("id = ?", jobID.String()).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: check job: %w", err)
	}
	if !exists {
		return soulbond.ErrJobNotFound
	}
	return soulbond.ErrLeaseLost
}

// ExpiredLeases returns in-flight jobs whose lease ran out before now.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("state = 'in_flight'").
		Where("lease_expires_at < ?", now.UTC()).
		Order("lease_expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("soulbond/bun: expired leases: %w", err)
	}
	return fromJobModels(models)
}

// ListJobs returns jobs ordered by enqueue time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	q = q.Order("enqueued_at ASC", "id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("soulbond/bun: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// JobStats aggregates every type and state in a single statement, which
// Postgres evaluates against one snapshot.
func (s *Store) JobStats(ctx context.Context, now time.Time) (job.Stats, error) {
	var rows []statRow
	err := s.db.NewRaw(`
		SELECT type, state, COUNT(*) AS n,
		       MIN(enqueued_at) FILTER (WHERE state = 'pending') AS oldest
		FROM soulbond_jobs
		GROUP BY type, state`,
	).Scan(ctx, &rows)
	if err != nil {
		return job.Stats{}, fmt.Errorf("soulbond/bun: job stats: %w", err)
	}

	stats := job.Stats{ByType: make(map[string]job.TypeStats), At: now.UTC()}
	for _, r := range rows {
		ts := stats.ByType[r.Type]
		if ts.Counts == nil {
			ts.Counts = make(map[job.State]int64)
		}
		ts.Counts[job.State(r.State)] = r.N
		if r.Oldest != nil {
			ts.OldestPending = r.Oldest.UTC()
		}
		stats.ByType[r.Type] = ts
		stats.Total += r.N
	}
	return stats, nil
}

// PruneJobs deletes succeeded jobs finished before the cutoff.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("soulbond_jobs").
		Where("state = 'succeeded'").
		Where("finished_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("soulbond/bun: prune jobs: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return n, nil
}
