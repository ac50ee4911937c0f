package plan

import (
	"context"
	"errors"
	"fmt"
)

// ErrUserRequired is returned when a lookup is made without a user ID.
var ErrUserRequired = errors.New("plan: user id required")

// Source resolves the current plan of a user.
type Source interface {
	GetPlan(ctx context.Context, userID string) (Plan, error)
}

// TierStore persists which tier each user is on. Every store backend
// implements it. Unknown users resolve to TierFree.
type TierStore interface {
	UserTier(ctx context.Context, userID string) (Tier, error)
	SetUserTier(ctx context.Context, userID string, tier Tier) error
}

// StoreSource resolves plans by reading the user's tier from a TierStore
// and looking it up in a Catalog.
type StoreSource struct {
	tiers   TierStore
	catalog *Catalog
}

var _ Source = (*StoreSource)(nil)

// NewStoreSource creates a Source backed by a TierStore.
func NewStoreSource(tiers TierStore, catalog *Catalog) *StoreSource {
	return &StoreSource{tiers: tiers, catalog: catalog}
}

// GetPlan implements Source.
func (s *StoreSource) GetPlan(ctx context.Context, userID string) (Plan, error) {
	if userID == "" {
		return Plan{}, ErrUserRequired
	}
	tier, err := s.tiers.UserTier(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("plan: lookup tier for %s: %w", userID, err)
	}
	p, ok := s.catalog.Plan(tier)
	if !ok {
		return Plan{}, fmt.Errorf("plan: tier %q not in catalog", tier)
	}
	return p, nil
}
