// Package observability exports Prometheus metrics.
//
// [MetricsExtension] implements the ext lifecycle hooks and counts enqueues,
// completions, retries, dead letters, lease expiries and quota decisions.
// [StatsCollector] turns the queue manager's snapshot into gauges at scrape
// time, so queue depth is never cached between scrapes. [HTTPMetrics]
// instruments the echo router.
//
// Per-execution OpenTelemetry tracing and metrics live in the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
