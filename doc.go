// Package soulbond is the root of the SoulBond AI queue core: a multi-tenant,
// rate-limited job queue with plan-based entitlement gating.
//
// The root package only holds what every subsystem shares: the runtime
// [Config] and the error taxonomy. The moving parts live in subpackages:
//
//   - plan: subscription tiers, the immutable plan catalog, entitlement sources
//   - ratelimit: fixed-window per-user quotas with an atomic check-and-consume
//   - job, queue, backoff, dlq: the job entity, the queue service, retry
//     delays and the dead letter queue
//   - worker, middleware, throttle: the worker pool and its execution chain
//   - manager: the administrative façade (start, stop, statistics)
//   - store/memory, store/redis, store/bun: storage backends
//
// # Error taxonomy
//
// [ErrQuotaExceeded] is user-facing and carries a retry-after through
// [QuotaExceededError]. [ErrQueueUnavailable] marks infrastructure failures
// of the job or counter store and is surfaced as a 503. [ErrJobHandlerFailure]
// never leaves the worker pool. [ErrWorkerStartup] is fatal at boot.
package soulbond
