// Package admission decides whether a user's request may become queued
// work.
//
// A [Gate] resolves the user's plan, rejects features the plan does not
// include, consumes one unit of the resource from the rate limiter and,
// when admitted, enqueues the job on behalf of the user. Feature checks run
// before the limiter so a rejected feature never costs quota.
package admission
