package dlq

import (
	"context"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
)

// Replay enqueues a new pending job built from the entry and marks the
// entry replayed. The new job has a fresh ID, zero attempts, the original
// attempt budget, and ReplayOf set to the dead-lettered job.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.ReplayedAt != nil {
		return nil, soulbond.ErrAlreadyReplayed
	}

	now := time.Now().UTC()
	j := job.New(entry.JobType, entry.Payload, job.Apply(job.Options{
		MaxAttempts: entry.MaxAttempts,
		UserID:      entry.UserID,
	}), now)
	j.ReplayOf = entry.JobID

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}
	if err := s.store.MarkDLQReplayed(ctx, entryID, j.ID, now); err != nil {
		// The job is already enqueued; report the marking failure.
		return j, err
	}
	return j, nil
}
