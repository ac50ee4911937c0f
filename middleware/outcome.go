package middleware

import (
	"context"
	"errors"

	"github.com/gkouam/soulbondai-sub005/job"
)

// Execution outcomes, as seen from inside the handler chain. The queue
// makes the final retry decision; these labels predict it.
const (
	OutcomeOK        = "ok"
	OutcomeRetry     = "retry"
	OutcomeTimeout   = "timeout"
	OutcomePermanent = "permanent"
	OutcomeExhausted = "exhausted"
)

// Outcome classifies the result of one execution of j. Exhausted means the
// error was retryable but j has no attempts left, so it will be
// dead-lettered.
func Outcome(j *job.Job, err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case job.IsPermanent(err):
		return OutcomePermanent
	case j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts:
		return OutcomeExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}
	return OutcomeRetry
}

// terminal reports whether an outcome ends the job's lineage in failure.
func terminal(outcome string) bool {
	return outcome == OutcomePermanent || outcome == OutcomeExhausted
}
