package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
)

// PushDLQ adds a dead-lettered job entry.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.keys.dlq(eID), dlqToMap(entry))
	pipe.ZAdd(ctx, s.keys.dlqIDs(), goredis.Z{Score: float64(entry.FailedAt.UnixMilli()), Member: eID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("soulbond/redis: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns entries newest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, s.keys.dlqIDs(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, s.keys.dlq(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToDLQ(vals)
		if convErr != nil {
			continue
		}
		if opts.JobType != "" && e.JobType != opts.JobType {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Offset >= len(entries) {
		return nil, nil
	}
	entries = entries[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.dlq(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: get dlq: %w", err)
	}
	if len(vals) == 0 {
		return nil, soulbond.ErrDLQNotFound
	}
	return mapToDLQ(vals)
}

// MarkDLQReplayed records a replay once.
func (s *Store) MarkDLQReplayed(ctx context.Context, entryID id.DLQID, replayJobID id.JobID, at time.Time) error {
	n, err := markReplayedScript.Run(ctx, s.client,
		[]string{s.keys.dlq(entryID.String())},
		replayJobID.String(), formatTime(at),
	).Int()
	if err != nil {
		return fmt.Errorf("soulbond/redis: mark dlq replayed: %w", err)
	}
	switch n {
	case 0:
		return soulbond.ErrDLQNotFound
	case -1:
		return soulbond.ErrAlreadyReplayed
	}
	return nil
}

// CountDLQ returns the number of entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, s.keys.dlqIDs()).Result()
	if err != nil {
		return 0, fmt.Errorf("soulbond/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func dlqToMap(e *dlq.Entry) map[string]any {
	m := map[string]any{
		"id":           e.ID.String(),
		"job_id":       e.JobID.String(),
		"job_type":     e.JobType,
		"payload":      string(e.Payload),
		"error":        e.Error,
		"attempts":     strconv.Itoa(e.Attempts),
		"max_attempts": strconv.Itoa(e.MaxAttempts),
		"user_id":      e.UserID,
		"failed_at":    formatTime(e.FailedAt),
		"created_at":   formatTime(e.CreatedAt),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = formatTime(*e.ReplayedAt)
		m["replay_job_id"] = e.ReplayJobID.String()
	}
	return m
}

func mapToDLQ(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("soulbond/redis: parse dlq id: %w", err)
	}
	jobID, _ := id.ParseJobID(m["job_id"])            //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &dlq.Entry{
		ID:          eID,
		JobID:       jobID,
		JobType:     m["job_type"],
		Payload:     []byte(m["payload"]),
		Error:       m["error"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		UserID:      m["user_id"],
		FailedAt:    parseTime(m["failed_at"]),
		ReplayedAt:  parseTimePtr(m["replayed_at"]),
		CreatedAt:   parseTime(m["created_at"]),
	}
	if v := m["replay_job_id"]; v != "" {
		e.ReplayJobID, _ = id.ParseJobID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return e, nil
}
