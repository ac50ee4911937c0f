package dlq

import (
	"context"
	"time"

	"github.com/gkouam/soulbondai-sub005/id"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// JobType filters by job type. Empty means all types.
	JobType string
}

// Store defines the persistence contract for the dead letter queue.
type Store interface {
	// PushDLQ adds an entry.
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ returns entries newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ retrieves an entry by ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// MarkDLQReplayed records that the entry was replayed as replayJobID.
	// Returns soulbond.ErrAlreadyReplayed if it already was.
	MarkDLQReplayed(ctx context.Context, entryID id.DLQID, replayJobID id.JobID, at time.Time) error

	// CountDLQ returns the number of entries.
	CountDLQ(ctx context.Context) (int64, error)
}
