// Package worker runs jobs. An [Executor] invokes the registered handler for
// one leased job through middleware and resolves the lease; a [Pool] runs N
// dequeue loops, renews the leases of running jobs, and drains or abandons
// them on stop.
//
// Handler errors never escape the pool: they become Fail calls on the
// queue, which decides between retry and dead-letter.
package worker
