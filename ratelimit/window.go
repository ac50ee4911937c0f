package ratelimit

import (
	"fmt"
	"time"
)

// Window is a fixed calendar period over which a quota counter accumulates.
// All windows are computed in UTC.
type Window string

const (
	Hourly  Window = "hourly"
	Daily   Window = "daily"
	Monthly Window = "monthly"
)

// ParseWindow parses a window name.
func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case Hourly, Daily, Monthly:
		return w, nil
	}
	return "", fmt.Errorf("ratelimit: unknown window %q", s)
}

// Bounds returns the start (inclusive) and end (exclusive) of the window
// containing now.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch w {
	case Hourly:
		start = now.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case Monthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
}
