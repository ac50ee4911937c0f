// Package jobs holds the background work the API produces: chat
// completions against the AI backend and user notifications.
//
// Handlers follow the queue's error contract. Errors that retrying cannot
// fix are wrapped with job.Permanent; everything else is retried with
// backoff and dead-lettered when the attempt budget runs out.
package jobs
