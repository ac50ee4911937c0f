package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gkouam/soulbondai-sub005/plan"
)

// ConsumeQuota runs the check-and-increment as one script, so concurrent
// requests across processes never admit more than limit per window.
func (s *Store) ConsumeQuota(ctx context.Context, key string, windowStart, resetAt time.Time, limit int64) (int64, bool, error) {
	res, err := quotaScript.Run(ctx, s.client, []string{s.keys.quota(key)},
		windowStart.UnixMilli(), resetAt.UnixMilli(), limit,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("soulbond/redis: consume quota: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("soulbond/redis: consume quota: unexpected reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

// QuotaUsage returns the counter for the given window.
func (s *Store) QuotaUsage(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	vals, err := s.client.HMGet(ctx, s.keys.quota(key), "w", "c").Result()
	if err != nil {
		return 0, fmt.Errorf("soulbond/redis: quota usage: %w", err)
	}
	w, _ := vals[0].(string) //nolint:errcheck // nil when the key is missing
	if w != strconv.FormatInt(windowStart.UnixMilli(), 10) {
		return 0, nil
	}
	c, _ := vals[1].(string) //nolint:errcheck // nil when the key is missing

	n, err := strconv.ParseInt(c, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// UserTier returns the user's tier, TierFree when unknown.
func (s *Store) UserTier(ctx context.Context, userID string) (plan.Tier, error) {
	v, err := s.client.HGet(ctx, s.keys.tiers(), userID).Result()
	if errors.Is(err, goredis.Nil) {
		return plan.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("soulbond/redis: user tier: %w", err)
	}
	return plan.Tier(v), nil
}

// SetUserTier records the user's tier.
func (s *Store) SetUserTier(ctx context.Context, userID string, tier plan.Tier) error {
	if err := s.client.HSet(ctx, s.keys.tiers(), userID, string(tier)).Err(); err != nil {
		return fmt.Errorf("soulbond/redis: set user tier: %w", err)
	}
	return nil
}
