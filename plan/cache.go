package plan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedSource memoizes another Source for a fixed TTL. Entitlement changes
// pushed by the billing system must call Invalidate so the new tier is seen
// before the TTL runs out.
type CachedSource struct {
	next  Source
	ttl   time.Duration
	cache *ristretto.Cache[string, Plan]

	// gen is bumped by every Invalidate. A lookup only stores its result
	// if no invalidation happened while it was reading next.
	mu  sync.Mutex
	gen uint64
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource wraps next with a ristretto cache holding up to
// maxEntries plans for ttl each.
func NewCachedSource(next Source, ttl time.Duration, maxEntries int64) (*CachedSource, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Plan]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("plan: create cache: %w", err)
	}
	return &CachedSource{next: next, ttl: ttl, cache: c}, nil
}

// GetPlan implements Source.
func (s *CachedSource) GetPlan(ctx context.Context, userID string) (Plan, error) {
	if p, ok := s.cache.Get(userID); ok {
		return clonePlan(p), nil
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	p, err := s.next.GetPlan(ctx, userID)
	if err != nil {
		return Plan{}, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache.SetWithTTL(userID, p, 1, s.ttl)
	}
	s.mu.Unlock()
	return p, nil
}

// Invalidate drops the cached plan for userID. It returns once the
// deletion is applied. Lookups already reading the old plan from next
// return it to their callers but do not cache it.
func (s *CachedSource) Invalidate(userID string) {
	s.mu.Lock()
	s.gen++
	s.cache.Del(userID)
	s.mu.Unlock()
	s.cache.Wait()
}

// Wait blocks until pending cache writes are applied. Used by tests.
func (s *CachedSource) Wait() { s.cache.Wait() }

// Close releases the cache's background goroutines.
func (s *CachedSource) Close() { s.cache.Close() }
