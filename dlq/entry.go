package dlq

import (
	"time"

	"github.com/gkouam/soulbondai-sub005/id"
)

// Entry is a dead-lettered job kept for inspection or replay.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	JobType     string     `json:"job_type"`
	Payload     []byte     `json:"payload"`
	Error       string     `json:"error"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	UserID      string     `json:"user_id,omitempty"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	ReplayJobID id.JobID   `json:"replay_job_id"`
	CreatedAt   time.Time  `json:"created_at"`
}
