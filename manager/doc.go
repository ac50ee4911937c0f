// Package manager is the administrative façade over the queue and the
// worker pool. It owns process lifecycle (Start and Stop), the background
// maintenance loops, and the statistics snapshot served to operators.
//
// Background loops, each enabled by a positive interval in soulbond.Config:
//
//   - reaper: reclaims jobs whose lease expired (ReapInterval)
//   - stats log: logs a snapshot for operational visibility (StatsInterval)
//   - janitor: prunes succeeded jobs older than Retention (JanitorInterval)
//
// GetQueueStats reads the store's consistent snapshot and the pool's
// utilization counters; it never holds the lifecycle lock across I/O.
package manager
