package backoff_test

import (
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	for _, attempts := range []int{4, 10, 100, 10_000} {
		if got := e.Delay(attempts); got != 10*time.Second {
			t.Errorf("Delay(%d) = %v, want %v (capped)", attempts, got, 10*time.Second)
		}
	}
}

func TestExponential_NonDecreasing(t *testing.T) {
	e := backoff.NewExponential(250*time.Millisecond, time.Minute)
	prev := time.Duration(0)
	for attempts := 0; attempts < 64; attempts++ {
		d := e.Delay(attempts)
		if d < prev {
			t.Fatalf("Delay(%d) = %v < previous %v", attempts, d, prev)
		}
		prev = d
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	for attempts := 0; attempts < 8; attempts++ {
		upper := backoff.NewExponential(time.Second, time.Minute).Delay(attempts)
		for range 50 {
			d := e.Delay(attempts)
			if d < upper/2 || d > upper {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", attempts, d, upper/2, upper)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if _, ok := s.(*backoff.Exponential); !ok {
		t.Fatalf("DefaultStrategy() = %T, want *backoff.Exponential", s)
	}
	if got := s.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want 2s", got)
	}
}
