// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps a job handler. Middleware are
// composed into a chain using [Chain] and applied before each job executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs job type, user, attempt, duration and outcome
//   - [Recover] catches panics and converts them to errors
//   - [Timeout] cancels the job context after the job's Timeout
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-type duration and outcome counters
//   - [User] carries the job's user ID into the handler context
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
