package job

import (
	"time"

	"github.com/gkouam/soulbondai-sub005/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting for its first claim.
	StatePending State = "pending"
	// StateInFlight means a worker holds a lease on the job.
	StateInFlight State = "in_flight"
	// StateSucceeded means the handler completed and the job was acked.
	StateSucceeded State = "succeeded"
	// StateFailed means the last attempt failed and a retry is scheduled.
	StateFailed State = "failed"
	// StateDeadLettered means the attempt budget is spent.
	StateDeadLettered State = "dead_lettered"
)

// States lists every state in lifecycle order.
var States = []State{StatePending, StateInFlight, StateSucceeded, StateFailed, StateDeadLettered}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateDeadLettered
}

// Claimable reports whether a job in this state may be dequeued once its
// NotBefore has passed.
func (s State) Claimable() bool {
	return s == StatePending || s == StateFailed
}

// Job represents a unit of work.
type Job struct {
	ID          id.JobID      `json:"id"`
	Type        string        `json:"type"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	UserID      string        `json:"user_id,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	ReplayOf    id.JobID      `json:"replay_of"`

	WorkerID       id.WorkerID `json:"worker_id"`
	LeaseToken     string      `json:"-"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`

	NotBefore  time.Time  `json:"not_before"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// New builds a pending job from options. The caller persists it.
func New(jobType string, payload []byte, opts Options, now time.Time) *Job {
	now = now.UTC()
	notBefore := now
	if !opts.NotBefore.IsZero() {
		notBefore = opts.NotBefore.UTC()
	} else if opts.Delay > 0 {
		notBefore = now.Add(opts.Delay)
	}
	return &Job{
		ID:          id.NewJobID(),
		Type:        jobType,
		Payload:     payload,
		State:       StatePending,
		MaxAttempts: opts.MaxAttempts,
		UserID:      opts.UserID,
		Timeout:     opts.Timeout,
		NotBefore:   notBefore,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	cp.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
