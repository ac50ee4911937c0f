package job

import (
	"context"
	"time"

	"github.com/gkouam/soulbondai-sub005/id"
)

// Claim describes the lease a store grants when a job is dequeued.
type Claim struct {
	WorkerID   id.WorkerID
	Token      string
	Now        time.Time
	LeaseUntil time.Time
}

// Resolution is the outcome written when a lease is released.
type Resolution struct {
	// State is StateSucceeded, StateFailed or StateDeadLettered.
	State State
	// NotBefore is the earliest retry time (StateFailed only).
	NotBefore time.Time
	LastError string
	At        time.Time
}

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Type filters by job type. Empty means all types.
	Type string
	// State filters by state. Empty means all states.
	State State
}

// TypeStats aggregates the jobs of one type.
type TypeStats struct {
	Counts map[State]int64 `json:"counts"`
	// OldestPending is the enqueue time of the oldest pending job, zero if
	// none is pending.
	OldestPending time.Time `json:"oldest_pending,omitzero"`
}

// Stats is a point-in-time aggregate read in one consistent store snapshot.
type Stats struct {
	ByType map[string]TypeStats `json:"by_type"`
	Total  int64                `json:"total"`
	At     time.Time            `json:"at"`
}

// Count returns the number of jobs of jobType in state s. An empty jobType
// sums over all types.
func (s Stats) Count(jobType string, st State) int64 {
	if jobType != "" {
		return s.ByType[jobType].Counts[st]
	}
	var n int64
	for _, ts := range s.ByType {
		n += ts.Counts[st]
	}
	return n
}

// Store defines the persistence contract for jobs.
type Store interface {
	// EnqueueJob persists a new pending job.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJob atomically picks the oldest due job (pending, or failed
	// with NotBefore reached) among types, moves it to in_flight under the
	// given claim, increments Attempts and returns it. It returns nil, nil
	// when nothing is due. Two concurrent calls never return the same job.
	ClaimJob(ctx context.Context, types []string, c Claim) (*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ExtendLease pushes the lease expiry of an in-flight job forward.
	// Returns soulbond.ErrLeaseLost if token no longer holds the lease.
	ExtendLease(ctx context.Context, jobID id.JobID, token string, until time.Time) error

	// ResolveJob releases the lease held by token and applies r.
	// Returns soulbond.ErrLeaseLost if token no longer holds the lease.
	ResolveJob(ctx context.Context, jobID id.JobID, token string, r Resolution) error

	// ExpiredLeases returns up to limit in-flight jobs whose lease expired
	// before now, including their lease tokens.
	ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// ListJobs returns jobs ordered by enqueue time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// JobStats returns counts per type and state from a consistent snapshot.
	JobStats(ctx context.Context, now time.Time) (Stats, error)

	// PruneJobs deletes succeeded jobs finished before the cutoff.
	PruneJobs(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
