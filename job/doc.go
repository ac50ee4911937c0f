// Package job defines the job entity, its state machine, typed definitions,
// the handler registry and the store contract every backend implements.
//
// # State machine
//
//	pending ──claim──▶ in_flight ──ack──▶ succeeded
//	                      │
//	                      ├──fail, attempts left──▶ failed ──claim (after NotBefore)──▶ in_flight
//	                      └──fail, budget spent──▶ dead_lettered
//
// A job only moves forward through these states. "failed" means a retry is
// scheduled; the job becomes claimable again once NotBefore passes.
// Dead-lettered jobs are never resurrected: a DLQ replay enqueues a new job
// whose ReplayOf points at the old one.
//
// # Leases
//
// Every claim stamps a fresh LeaseToken and a LeaseExpiresAt. Resolving or
// extending a lease requires the token, so a worker whose lease expired and
// was reclaimed elsewhere cannot ack a job it no longer owns.
//
// # Defining a job
//
//	var SendNotification = job.NewDefinition("notification",
//	    func(ctx context.Context, n Notification) error {
//	        return notifier.Notify(ctx, n)
//	    },
//	    job.WithMaxAttempts(3),
//	)
//
//	job.RegisterDefinition(registry, SendNotification)
package job
