package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:soulbond_jobs"`

	ID             string     `bun:"id,pk"`
	Type           string     `bun:"type,notnull"`
	Payload        []byte     `bun:"payload,notnull,type:bytea"`
	State          string     `bun:"state,notnull,default:'pending'"`
	Attempts       int        `bun:"attempts,notnull,default:0"`
	MaxAttempts    int        `bun:"max_attempts,notnull,default:5"`
	UserID         string     `bun:"user_id,notnull"`
	LastError      string     `bun:"last_error,notnull"`
	Timeout        int64      `bun:"timeout,notnull,default:0"`
	ReplayOf       *string    `bun:"replay_of"`
	WorkerID       *string    `bun:"worker_id"`
	LeaseToken     *string    `bun:"lease_token"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	NotBefore      time.Time  `bun:"not_before,notnull"`
	EnqueuedAt     time.Time  `bun:"enqueued_at,notnull"`
	StartedAt      *time.Time `bun:"started_at"`
	FinishedAt     *time.Time `bun:"finished_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:             j.ID.String(),
		Type:           j.Type,
		Payload:        j.Payload,
		State:          string(j.State),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		UserID:         j.UserID,
		LastError:      j.LastError,
		Timeout:        j.Timeout.Nanoseconds(),
		LeaseExpiresAt: j.LeaseExpiresAt,
		NotBefore:      j.NotBefore,
		EnqueuedAt:     j.EnqueuedAt,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if m.Payload == nil {
		m.Payload = []byte{}
	}
	m.ReplayOf = optionalID(j.ReplayOf)
	m.WorkerID = optionalID(j.WorkerID)
	if j.LeaseToken != "" {
		m.LeaseToken = &j.LeaseToken
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("soulbond/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		ID:             parsedID,
		Type:           m.Type,
		Payload:        m.Payload,
		State:          job.State(m.State),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		UserID:         m.UserID,
		LastError:      m.LastError,
		Timeout:        time.Duration(m.Timeout),
		LeaseExpiresAt: m.LeaseExpiresAt,
		NotBefore:      m.NotBefore,
		EnqueuedAt:     m.EnqueuedAt,
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.LeaseToken != nil {
		j.LeaseToken = *m.LeaseToken
	}
	if m.WorkerID != nil {
		if wid, wErr := id.ParseWorkerID(*m.WorkerID); wErr == nil {
			j.WorkerID = wid
		}
	}
	if m.ReplayOf != nil {
		if rid, rErr := id.ParseJobID(*m.ReplayOf); rErr == nil {
			j.ReplayOf = rid
		}
	}
	return j, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── DLQ model ─────────────────────────────────────────────────────

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:soulbond_dlq"`

	ID          string     `bun:"id,pk"`
	JobID       string     `bun:"job_id,notnull"`
	JobType     string     `bun:"job_type,notnull"`
	Payload     []byte     `bun:"payload,notnull,type:bytea"`
	Error       string     `bun:"error,notnull"`
	Attempts    int        `bun:"attempts,notnull"`
	MaxAttempts int        `bun:"max_attempts,notnull"`
	UserID      string     `bun:"user_id,notnull"`
	FailedAt    time.Time  `bun:"failed_at,notnull"`
	ReplayedAt  *time.Time `bun:"replayed_at"`
	ReplayJobID *string    `bun:"replay_job_id"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
}

func toDLQModel(e *dlq.Entry) *dlqEntryModel {
	m := &dlqEntryModel{
		ID:          e.ID.String(),
		JobID:       e.JobID.String(),
		JobType:     e.JobType,
		Payload:     e.Payload,
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		UserID:      e.UserID,
		FailedAt:    e.FailedAt,
		ReplayedAt:  e.ReplayedAt,
		ReplayJobID: optionalID(e.ReplayJobID),
		CreatedAt:   e.CreatedAt,
	}
	if m.Payload == nil {
		m.Payload = []byte{}
	}
	return m
}

func fromDLQModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("soulbond/bun: parse dlq id %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("soulbond/bun: parse dlq job id %q: %w", m.JobID, err)
	}

	e := &dlq.Entry{
		ID:          entryID,
		JobID:       jobID,
		JobType:     m.JobType,
		Payload:     m.Payload,
		Error:       m.Error,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		UserID:      m.UserID,
		FailedAt:    m.FailedAt,
		ReplayedAt:  m.ReplayedAt,
		CreatedAt:   m.CreatedAt,
	}
	if m.ReplayJobID != nil {
		if rid, rErr := id.ParseJobID(*m.ReplayJobID); rErr == nil {
			e.ReplayJobID = rid
		}
	}
	return e, nil
}

// ── Quota and tier models ─────────────────────────────────────────

type userTierModel struct {
	bun.BaseModel `bun:"table:soulbond_user_tiers"`

	UserID    string    `bun:"user_id,pk"`
	Tier      string    `bun:"tier,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type statRow struct {
	Type   string     `bun:"type"`
	State  string     `bun:"state"`
	N      int64      `bun:"n"`
	Oldest *time.Time `bun:"oldest"`
}

func optionalID(v id.ID) *string {
	if v.IsNil() {
		return nil
	}
	s := v.String()
	return &s
}
