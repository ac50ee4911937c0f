// Package dlq provides the dead letter queue for jobs that exhausted their
// attempt budget or failed permanently.
//
// When the queue dead-letters a job it calls [Service.Push], which copies
// the job's identity, payload, final error and attempt counts into an
// [Entry]. Entries are inspected and replayed through the admin API:
//
//   - GET  /v1/admin/dlq             list entries
//   - POST /v1/admin/dlq/:id/replay  replay one entry
//
// # Replay
//
// Replaying never resurrects the dead-lettered job. It enqueues a brand new
// job (fresh ID, zero attempts) whose ReplayOf names the original, then
// marks the entry replayed. An entry can be replayed once.
package dlq
