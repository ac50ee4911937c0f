package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
)

const pruneBatch = 500

// EnqueueJob stores the job as a Hash and adds it to its type's ready set.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	args := []any{
		jID,
		j.Type,
		j.NotBefore.UnixMilli(),
		j.EnqueuedAt.UnixMilli(),
		string(s.keys),
	}
	for k, v := range jobToMap(j) {
		args = append(args, k, v)
	}

	n, err := enqueueScript.Run(ctx, s.client, []string{s.keys.job(jID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("soulbond/redis: enqueue job: %w", err)
	}
	if n == 0 {
		return soulbond.ErrJobAlreadyExists
	}
	return nil
}

// ClaimJob leases the oldest due job among types.
func (s *Store) ClaimJob(ctx context.Context, types []string, c job.Claim) (*job.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = s.keys.ready(t)
	}

	jID, err := claimScript.Run(ctx, s.client, keys,
		c.Now.UnixMilli(),
		c.WorkerID.String(),
		c.Token,
		c.LeaseUntil.UnixMilli(),
		formatTime(c.LeaseUntil),
		formatTime(c.Now),
		string(s.keys),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: claim job: %w", err)
	}
	return s.getJobByKey(ctx, s.keys.job(jID))
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, s.keys.job(jobID.String()))
}

// ExtendLease pushes the lease expiry forward for the token holder.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, token string, until time.Time) error {
	jID := jobID.String()
	n, err := extendScript.Run(ctx, s.client,
		[]string{s.keys.job(jID), s.keys.inflight()},
		jID, token, until.UnixMilli(), formatTime(until),
	).Int()
	if err != nil {
		return fmt.Errorf("soulbond/redis: extend lease: %w", err)
	}
	return leaseResult(n)
}

// ResolveJob releases the lease held by token and applies r.
func (s *Store) ResolveJob(ctx context.Context, jobID id.JobID, token string, r job.Resolution) error {
	switch r.State {
	case job.StateSucceeded, job.StateFailed, job.StateDeadLettered:
	default:
		return soulbond.ErrInvalidState
	}

	var nbMs int64
	var nbAt string
	if r.State == job.StateFailed {
		nbMs, nbAt = r.NotBefore.UnixMilli(), formatTime(r.NotBefore)
	}

	jID := jobID.String()
	n, err := resolveScript.Run(ctx, s.client, []string{s.keys.job(jID)},
		jID, token, string(r.State), nbMs, nbAt, r.LastError,
		formatTime(r.At), r.At.UnixMilli(), string(s.keys),
	).Int()
	if err != nil {
		return fmt.Errorf("soulbond/redis: resolve job: %w", err)
	}
	return leaseResult(n)
}

func leaseResult(n int) error {
	switch n {
	case 0:
		return soulbond.ErrJobNotFound
	case -1:
		return soulbond.ErrLeaseLost
	default:
		return nil
	}
}

// ExpiredLeases returns in-flight jobs whose lease ran out before now.
func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	rng := &goredis.ZRangeBy{Min: "-inf", Max: "(" + strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.keys.inflight(), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: expired leases: %w", err)
	}

	out := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, s.keys.job(jID))
		if getErr != nil {
			continue // resolved or pruned meanwhile
		}
		out = append(out, j)
	}
	return out, nil
}

// ListJobs returns jobs ordered by enqueue time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, s.keys.jobs()).Result()
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, s.keys.job(jID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].EnqueuedAt.Equal(jobs[b].EnqueuedAt) {
			return jobs[a].EnqueuedAt.Before(jobs[b].EnqueuedAt)
		}
		return jobs[a].ID.String() < jobs[b].ID.String()
	})

	if opts.Offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// JobStats reads every counter in one script call.
func (s *Store) JobStats(ctx context.Context, now time.Time) (job.Stats, error) {
	res, err := statsScript.Run(ctx, s.client,
		[]string{s.keys.stats(), s.keys.types()}, string(s.keys),
	).Slice()
	if err != nil {
		return job.Stats{}, fmt.Errorf("soulbond/redis: job stats: %w", err)
	}

	stats := job.Stats{ByType: make(map[string]job.TypeStats), At: now.UTC()}
	if len(res) != 2 {
		return stats, nil
	}
	counts := pairs(res[0])
	for i := 0; i+1 < len(counts); i += 2 {
		n, err := strconv.ParseInt(counts[i+1], 10, 64)
		if err != nil || n == 0 {
			continue
		}
		jobType, state, ok := strings.Cut(counts[i], "|")
		if !ok {
			continue
		}
		ts := stats.ByType[jobType]
		if ts.Counts == nil {
			ts.Counts = make(map[job.State]int64)
		}
		ts.Counts[job.State(state)] = n
		stats.ByType[jobType] = ts
		stats.Total += n
	}

	oldest := pairs(res[1])
	for i := 0; i+1 < len(oldest); i += 2 {
		ms, err := strconv.ParseFloat(oldest[i+1], 64)
		if err != nil {
			continue
		}
		ts, ok := stats.ByType[oldest[i]]
		if !ok {
			continue
		}
		ts.OldestPending = time.UnixMilli(int64(ms)).UTC()
		stats.ByType[oldest[i]] = ts
	}
	return stats, nil
}

// PruneJobs deletes succeeded jobs finished before the cutoff in batches.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		n, err := pruneScript.Run(ctx, s.client, []string{s.keys.done()},
			before.UnixMilli(), pruneBatch, string(s.keys),
		).Int64()
		if err != nil {
			return total, fmt.Errorf("soulbond/redis: prune jobs: %w", err)
		}
		total += n
		if n < pruneBatch {
			return total, nil
		}
	}
}

// ── helpers ──

// pairs flattens a Lua string array reply.
func pairs(v any) []string {
	raw, _ := v.([]any) //nolint:errcheck // shape fixed by the script
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		str, _ := r.(string) //nolint:errcheck // shape fixed by the script
		out = append(out, str)
	}
	return out
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	return t
}

func parseTimePtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseTime(v)
	return &t
}

func jobToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"id":           j.ID.String(),
		"type":         j.Type,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"attempts":     strconv.Itoa(j.Attempts),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"user_id":      j.UserID,
		"last_error":   j.LastError,
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"not_before":   formatTime(j.NotBefore),
		"enqueued_at":  formatTime(j.EnqueuedAt),
		"updated_at":   formatTime(j.UpdatedAt),
	}
	if !j.ReplayOf.IsNil() {
		m["replay_of"] = j.ReplayOf.String()
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, soulbond.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: parse job id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:             jID,
		Type:           m["type"],
		Payload:        []byte(m["payload"]),
		State:          job.State(m["state"]),
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		UserID:         m["user_id"],
		LastError:      m["last_error"],
		Timeout:        time.Duration(timeout),
		LeaseToken:     m["lease_token"],
		LeaseExpiresAt: parseTimePtr(m["lease_expires_at"]),
		NotBefore:      parseTime(m["not_before"]),
		EnqueuedAt:     parseTime(m["enqueued_at"]),
		StartedAt:      parseTimePtr(m["started_at"]),
		FinishedAt:     parseTimePtr(m["finished_at"]),
		UpdatedAt:      parseTime(m["updated_at"]),
	}
	if v := m["worker_id"]; v != "" {
		j.WorkerID, _ = id.ParseWorkerID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["replay_of"]; v != "" {
		j.ReplayOf, _ = id.ParseJobID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return j, nil
}
