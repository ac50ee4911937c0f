// Package store defines the aggregate persistence interface.
//
// Each subsystem defines the store contract it needs: job.Store for the
// queue, dlq.Store for dead letters, ratelimit.CounterStore for quota
// counters and plan.TierStore for entitlements. A backend implements all
// of them so one connection serves the whole process.
//
// # Available backends
//
//   - store/memory: in-process, for development and tests
//   - store/redis: go-redis, atomic operations as Lua scripts
//   - store/bun: PostgreSQL through bun, SKIP LOCKED claims
//
// Call Migrate once at startup to create or update the schema.
package store

import (
	"context"

	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store
	dlq.Store
	ratelimit.CounterStore
	plan.TierStore

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Close releases resources the store owns.
	Close() error
}
