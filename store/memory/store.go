// Package memory is a fully in-memory implementation of store.Store.
// It is safe for concurrent access and intended for development and tests.
//
// A single mutex serializes every mutation, which makes each claim,
// resolution and quota increment trivially atomic. Stats counters are
// maintained incrementally so a snapshot only copies a small map.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
	"github.com/gkouam/soulbondai-sub005/store"
)

var _ store.Store = (*Store)(nil)

type statKey struct {
	jobType string
	state   job.State
}

type quotaCounter struct {
	windowStart time.Time
	count       int64
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Job
	seq    map[string]uint64
	next   uint64
	counts map[statKey]int64

	dlqs   map[string]*dlq.Entry
	quotas map[string]*quotaCounter
	tiers  map[string]plan.Tier
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Job),
		seq:    make(map[string]uint64),
		counts: make(map[statKey]int64),
		dlqs:   make(map[string]*dlq.Entry),
		quotas: make(map[string]*quotaCounter),
		tiers:  make(map[string]plan.Tier),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new pending job.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return soulbond.ErrJobAlreadyExists
	}
	cp := j.Clone()
	m.jobs[key] = cp
	m.next++
	m.seq[key] = m.next
	m.counts[statKey{cp.Type, cp.State}]++
	return nil
}

// ClaimJob picks the oldest due job among types and leases it.
func (m *Store) ClaimJob(_ context.Context, types []string, c job.Claim) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	var best *job.Job
	for _, j := range m.jobs {
		if !j.State.Claimable() || j.NotBefore.After(c.Now) {
			continue
		}
		if _, ok := typeSet[j.Type]; !ok {
			continue
		}
		if best == nil || m.before(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	m.move(best, job.StateInFlight)
	now := c.Now.UTC()
	until := c.LeaseUntil.UTC()
	best.Attempts++
	best.WorkerID = c.WorkerID
	best.LeaseToken = c.Token
	best.LeaseExpiresAt = &until
	best.StartedAt = &now
	best.UpdatedAt = now
	return best.Clone(), nil
}

// before orders jobs FIFO: NotBefore, then enqueue time, then insertion.
func (m *Store) before(a, b *job.Job) bool {
	if !a.NotBefore.Equal(b.NotBefore) {
		return a.NotBefore.Before(b.NotBefore)
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return m.seq[a.ID.String()] < m.seq[b.ID.String()]
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, soulbond.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ExtendLease pushes the lease expiry forward for the token holder.
func (m *Store) ExtendLease(_ context.Context, jobID id.JobID, token string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.leased(jobID, token)
	if err != nil {
		return err
	}
	u := until.UTC()
	j.LeaseExpiresAt = &u
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ResolveJob releases the lease held by token and applies r.
func (m *Store) ResolveJob(_ context.Context, jobID id.JobID, token string, r job.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.leased(jobID, token)
	if err != nil {
		return err
	}
	switch r.State {
	case job.StateSucceeded, job.StateDeadLettered:
		at := r.At.UTC()
		j.FinishedAt = &at
	case job.StateFailed:
		j.NotBefore = r.NotBefore.UTC()
	default:
		return soulbond.ErrInvalidState
	}

	m.move(j, r.State)
	if r.LastError != "" {
		j.LastError = r.LastError
	}
	j.LeaseToken = ""
	j.LeaseExpiresAt = nil
	j.UpdatedAt = r.At.UTC()
	return nil
}

// leased returns the live job if token holds its lease. Caller holds mu.
func (m *Store) leased(jobID id.JobID, token string) (*job.Job, error) {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, soulbond.ErrJobNotFound
	}
	if j.State != job.StateInFlight || j.LeaseToken == "" || j.LeaseToken != token {
		return nil, soulbond.ErrLeaseLost
	}
	return j, nil
}

// move changes state and keeps the stats counters in step. Caller holds mu.
func (m *Store) move(j *job.Job, to job.State) {
	m.counts[statKey{j.Type, j.State}]--
	j.State = to
	m.counts[statKey{j.Type, to}]++
}

// ExpiredLeases returns in-flight jobs whose lease ran out before now.
func (m *Store) ExpiredLeases(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateInFlight || j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Before(now) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].LeaseExpiresAt.Before(*out[b].LeaseExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListJobs returns jobs ordered by enqueue time, then ID, regardless of
// when they become eligible.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		result = append(result, j)
	}
	sort.Slice(result, func(a, b int) bool {
		if !result[a].EnqueuedAt.Equal(result[b].EnqueuedAt) {
			return result[a].EnqueuedAt.Before(result[b].EnqueuedAt)
		}
		return result[a].ID.String() < result[b].ID.String()
	})
	result = paginate(result, opts.Offset, opts.Limit)

	out := make([]*job.Job, len(result))
	for i, j := range result {
		out[i] = j.Clone()
	}
	return out, nil
}

// JobStats returns counts per type and state.
func (m *Store) JobStats(_ context.Context, now time.Time) (job.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := job.Stats{ByType: make(map[string]job.TypeStats), At: now.UTC()}
	for k, n := range m.counts {
		if n == 0 {
			continue
		}
		ts, ok := stats.ByType[k.jobType]
		if !ok {
			ts = job.TypeStats{Counts: make(map[job.State]int64)}
		}
		ts.Counts[k.state] = n
		stats.ByType[k.jobType] = ts
		stats.Total += n
	}
	if stats.Count("", job.StatePending) > 0 {
		for _, j := range m.jobs {
			if j.State != job.StatePending {
				continue
			}
			ts := stats.ByType[j.Type]
			if ts.OldestPending.IsZero() || j.EnqueuedAt.Before(ts.OldestPending) {
				ts.OldestPending = j.EnqueuedAt
				stats.ByType[j.Type] = ts
			}
		}
	}
	return stats, nil
}

// PruneJobs deletes succeeded jobs finished before the cutoff.
func (m *Store) PruneJobs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, j := range m.jobs {
		if j.State != job.StateSucceeded || j.FinishedAt == nil || !j.FinishedAt.Before(before) {
			continue
		}
		m.counts[statKey{j.Type, j.State}]--
		delete(m.jobs, key)
		delete(m.seq, key)
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// DLQ store
// ──────────────────────────────────────────────────

// PushDLQ adds an entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.JobType != "" && e.JobType != opts.JobType {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool {
		if !result[a].FailedAt.Equal(result[b].FailedAt) {
			return result[a].FailedAt.After(result[b].FailedAt)
		}
		return result[a].ID.String() > result[b].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, soulbond.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkDLQReplayed records a replay once.
func (m *Store) MarkDLQReplayed(_ context.Context, entryID id.DLQID, replayJobID id.JobID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return soulbond.ErrDLQNotFound
	}
	if e.ReplayedAt != nil {
		return soulbond.ErrAlreadyReplayed
	}
	t := at.UTC()
	e.ReplayedAt = &t
	e.ReplayJobID = replayJobID
	return nil
}

// CountDLQ returns the number of entries.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Quota counters
// ──────────────────────────────────────────────────

// ConsumeQuota resets the counter when the window changed and increments
// it when the result stays within limit, under one lock.
func (m *Store) ConsumeQuota(_ context.Context, key string, windowStart, _ time.Time, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.quotas[key]
	if !ok {
		c = &quotaCounter{}
		m.quotas[key] = c
	}
	if !c.windowStart.Equal(windowStart) {
		c.windowStart = windowStart
		c.count = 0
	}
	if c.count+1 > limit {
		return c.count, false, nil
	}
	c.count++
	return c.count, true, nil
}

// QuotaUsage returns the counter for the given window.
func (m *Store) QuotaUsage(_ context.Context, key string, windowStart time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.quotas[key]
	if !ok || !c.windowStart.Equal(windowStart) {
		return 0, nil
	}
	return c.count, nil
}

var _ ratelimit.CounterStore = (*Store)(nil)

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// UserTier returns the user's tier, TierFree when unknown.
func (m *Store) UserTier(_ context.Context, userID string) (plan.Tier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.tiers[userID]; ok {
		return t, nil
	}
	return plan.TierFree, nil
}

// SetUserTier records the user's tier.
func (m *Store) SetUserTier(_ context.Context, userID string, tier plan.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[userID] = tier
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
