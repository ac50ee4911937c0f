package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
)

// PushDLQ adds a dead-lettered job entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.db.NewInsert().Model(toDLQModel(entry)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.db.NewSelect().Model(&models)

	if opts.JobType != "" {
		q = q.Where("job_type = ?", opts.JobType)
	}

	q = q.Order("failed_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("soulbond/bun: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromDLQModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("soulbond/bun: list dlq convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, soulbond.ErrDLQNotFound
		}
		return nil, fmt.Errorf("soulbond/bun: get dlq: %w", err)
	}
	return fromDLQModel(m)
}

// MarkDLQReplayed records a replay once.
func (s *Store) MarkDLQReplayed(ctx context.Context, entryID id.DLQID, replayJobID id.JobID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("soulbond_dlq").
		Set("replayed_at = ?", at.UTC()).
		Set("replay_job_id = ?", replayJobID.String()).
		Where("id = ?", entryID.String()).
		Where("replayed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: mark dlq replayed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 { //nolint:errcheck // driver always returns nil
		return nil
	}

	if _, err := s.GetDLQ(ctx, entryID); err != nil {
		return err
	}
	return soulbond.ErrAlreadyReplayed
}

// CountDLQ returns the number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().TableExpr("soulbond_dlq").Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("soulbond/bun: count dlq: %w", err)
	}
	return int64(count), nil
}
