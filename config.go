package soulbond

import "time"

// Config holds the runtime settings shared by the queue, the worker pool and
// the queue manager.
type Config struct {
	// Concurrency is the number of worker loops the pool runs.
	Concurrency int

	// JobTypes lists the job types the pool drains. Empty means every
	// registered handler.
	JobTypes []string

	// PollInterval bounds how long a blocked dequeue waits before it looks
	// at the store again. Local enqueues wake waiters immediately.
	PollInterval time.Duration

	// LeaseDuration is the visibility timeout granted on each claim.
	LeaseDuration time.Duration

	// HeartbeatInterval is how often in-flight leases are renewed.
	// Must be shorter than LeaseDuration.
	HeartbeatInterval time.Duration

	// DrainTimeout bounds a graceful stop.
	DrainTimeout time.Duration

	// ReapInterval is how often expired leases are reclaimed.
	ReapInterval time.Duration

	// StatsInterval is how often the manager logs a stats snapshot.
	// Zero disables the stats log.
	StatsInterval time.Duration

	// MaxAttempts is the default attempt budget for a new job.
	MaxAttempts int

	// BackoffBase and BackoffMax parameterize the retry delay
	// (BackoffBase * 2^n, capped at BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Retention is how long succeeded jobs are kept. Zero keeps them forever.
	Retention time.Duration

	// JanitorInterval is how often succeeded jobs past Retention are pruned.
	JanitorInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      time.Second,
		LeaseDuration:     30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		DrainTimeout:      30 * time.Second,
		ReapInterval:      15 * time.Second,
		StatsInterval:     time.Minute,
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMax:        5 * time.Minute,
		Retention:         24 * time.Hour,
		JanitorInterval:   10 * time.Minute,
	}
}
