// Package backoff provides retry delay strategies for failed jobs.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next attempt of a job.
type Strategy interface {
	// Delay returns how long to wait after a failure, given the number of
	// attempts made so far (1 after the first failure).
	Delay(attempts int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay on each attempt.
// Delay = min(Base * 2^attempts, Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempts, capped at Max. The result never
// decreases as attempts grows.
func (e *Exponential) Delay(attempts int) time.Duration {
	return capped(e.Base, attempts, e.Max)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (equal jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter spreads retries of jobs that failed together.
// Delay is uniform in [d/2, d] where d = min(Base * 2^attempts, Max).
type ExponentialWithJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with equal jitter.
func NewExponentialWithJitter(base, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [d/2, d].
func (e *ExponentialWithJitter) Delay(attempts int) time.Duration {
	d := capped(e.Base, attempts, e.Max)
	half := d / 2
	return half + time.Duration(rand.Float64()*float64(d-half)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func capped(base time.Duration, attempts int, maxDelay time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	f := float64(base) * math.Pow(2, float64(attempts))
	if maxDelay > 0 && f > float64(maxDelay) {
		return maxDelay
	}
	if f > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns Exponential with a 1s base and a 5m cap.
func DefaultStrategy() Strategy {
	return NewExponential(time.Second, 5*time.Minute)
}
