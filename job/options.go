package job

import "time"

// Options configures per-job behavior.
type Options struct {
	// MaxAttempts is the total number of attempts before the job is
	// dead-lettered. Values below 1 are treated as 1.
	MaxAttempts int

	// Delay postpones the first attempt.
	Delay time.Duration

	// NotBefore schedules the first attempt at an absolute time and wins
	// over Delay.
	NotBefore time.Time

	// Timeout bounds a single handler invocation. Zero means unlimited.
	Timeout time.Duration

	// UserID is the tenant the job runs on behalf of.
	UserID string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Timeout:     2 * time.Minute,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithDelay postpones the first attempt by d.
func WithDelay(d time.Duration) Option {
	return func(o *Options) { o.Delay = d }
}

// WithNotBefore schedules the first attempt at t.
func WithNotBefore(t time.Time) Option {
	return func(o *Options) { o.NotBefore = t }
}

// WithTimeout sets the per-attempt execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithUser tags the job with the user it runs for.
func WithUser(userID string) Option {
	return func(o *Options) { o.UserID = userID }
}

// Apply returns base with opts applied and MaxAttempts normalized.
func Apply(base Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	if base.MaxAttempts < 1 {
		base.MaxAttempts = 1
	}
	return base
}
