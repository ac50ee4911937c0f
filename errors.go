package soulbond

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Taxonomy surfaced at the request boundary.
	ErrQuotaExceeded     = errors.New("soulbond: quota exceeded")
	ErrQueueUnavailable  = errors.New("soulbond: queue unavailable")
	ErrJobHandlerFailure = errors.New("soulbond: job handler failed")
	ErrWorkerStartup     = errors.New("soulbond: worker startup failed")

	// Request errors.
	ErrInvalidRequest     = errors.New("soulbond: invalid request")
	ErrFeatureNotEntitled = errors.New("soulbond: feature not included in plan")
	ErrUnauthenticated    = errors.New("soulbond: unauthenticated")
	ErrForbidden          = errors.New("soulbond: forbidden")

	// Not found errors.
	ErrJobNotFound = errors.New("soulbond: job not found")
	ErrDLQNotFound = errors.New("soulbond: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("soulbond: job already exists")
	ErrAlreadyReplayed  = errors.New("soulbond: dlq entry already replayed")

	// Lease and state errors.
	ErrLeaseLost     = errors.New("soulbond: lease lost")
	ErrLeaseExpired  = errors.New("soulbond: lease expired")
	ErrInvalidState  = errors.New("soulbond: invalid state transition")
	ErrNoHandler     = errors.New("soulbond: no handler registered for job type")
	ErrDrainTimeout  = errors.New("soulbond: drain timeout exceeded")
	ErrNotRunning    = errors.New("soulbond: not running")
	ErrStoreRequired = errors.New("soulbond: no store configured")
)

// QuotaExceededError is returned when a user has exhausted the quota for a
// resource in the current window. It matches ErrQuotaExceeded via errors.Is.
type QuotaExceededError struct {
	Resource   string
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("soulbond: quota exceeded for %s (limit %d), retry after %s",
		e.Resource, e.Limit, e.RetryAfter.Round(time.Second))
}

// Is reports whether target is ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// RetryAfterSeconds returns the retry delay rounded up to whole seconds,
// never less than one.
func (e *QuotaExceededError) RetryAfterSeconds() int {
	return CeilSeconds(e.RetryAfter)
}

// Unavailable wraps an infrastructure failure of the job or counter store so
// that it matches both ErrQueueUnavailable and the underlying cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQueueUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrQueueUnavailable, op, err)
}

// CeilSeconds rounds d up to whole seconds with a floor of one.
func CeilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
