// Package queue is the job queue service: it enqueues jobs, hands them to
// workers under a lease, and applies the retry and dead-letter policy when
// they fail.
//
// # Semantics
//
// Delivery is at-least-once. [Service.Dequeue] claims the oldest due job
// of the requested types (FIFO by NotBefore, then enqueue time, then ID)
// and grants a lease of Config.LeaseDuration under a fresh lease token.
// Exactly one of [Service.Ack] or [Service.Fail] must follow, presenting
// the same token; a worker whose lease was reclaimed gets
// soulbond.ErrLeaseLost and must drop the job.
//
// # Retries
//
// [Service.Fail] reschedules the job at now + backoff.Delay(attempts) while
// attempts < MaxAttempts, and dead-letters it otherwise or when the error
// is job.Permanent. Dead-lettered jobs are copied to the DLQ and only run
// again through [Service.Replay], which enqueues a new job.
//
// # Lease expiry
//
// [Service.ReclaimExpired] fails every job whose lease ran out with
// soulbond.ErrLeaseExpired, so a crashed worker costs the job one attempt.
//
// # Blocking dequeue
//
// Dequeue returns as soon as a job is claimable. Enqueues made through the
// same Service wake waiters immediately; work enqueued by other processes
// or becoming due later is picked up within Config.PollInterval.
package queue
