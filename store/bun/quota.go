package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gkouam/soulbondai-sub005/plan"
)

// ConsumeQuota increments the counter in one conditional upsert. The row
// is reset when its window start differs, and left untouched (no row
// returned) when the increment would exceed limit.
func (s *Store) ConsumeQuota(ctx context.Context, key string, windowStart, resetAt time.Time, limit int64) (int64, bool, error) {
	if limit <= 0 {
		used, err := s.QuotaUsage(ctx, key, windowStart)
		return used, false, err
	}

	var used int64
	err := s.db.NewRaw(`
		INSERT INTO soulbond_quota_counters AS c (key, window_start, count, reset_at)
		VALUES (?0, ?1, 1, ?2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN c.window_start <> EXCLUDED.window_start THEN 1 ELSE c.count + 1 END,
			window_start = EXCLUDED.window_start,
			reset_at = EXCLUDED.reset_at
		WHERE c.window_start <> EXCLUDED.window_start OR c.count < ?3
		RETURNING count`,
		key, windowStart.UTC(), resetAt.UTC(), limit,
	).Scan(ctx, &used)
	if isNoRows(err) {
		current, uErr := s.QuotaUsage(ctx, key, windowStart)
		return current, false, uErr
	}
	if err != nil {
		return 0, false, fmt.Errorf("soulbond/bun: consume quota: %w", err)
	}
	return used, true, nil
}

// QuotaUsage returns the counter for the given window.
func (s *Store) QuotaUsage(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var used int64
	err := s.db.NewSelect().
		TableExpr("soulbond_quota_counters").
		Column("count").
		Where("key = ?", key).
		Where("window_start = ?", windowStart.UTC()).
		Scan(ctx, &used)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("soulbond/bun: quota usage: %w", err)
	}
	return used, nil
}

// UserTier returns the user's tier, TierFree when unknown.
func (s *Store) UserTier(ctx context.Context, userID string) (plan.Tier, error) {
	m := new(userTierModel)
	err := s.db.NewSelect().Model(m).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if isNoRows(err) {
		return plan.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("soulbond/bun: user tier: %w", err)
	}
	return plan.Tier(m.Tier), nil
}

// SetUserTier records the user's tier.
func (s *Store) SetUserTier(ctx context.Context, userID string, tier plan.Tier) error {
	m := &userTierModel{UserID: userID, Tier: string(tier), UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (user_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("soulbond/bun: set user tier: %w", err)
	}
	return nil
}
