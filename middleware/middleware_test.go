package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005"

	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{Type: "test", ID: id.NewJobID()}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), j, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	j := &job.Job{Type: "panicky", ID: id.NewJobID()}

	err := mw(context.Background(), j, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if !errors.Is(err, soulbond.ErrJobHandlerFailure) {
		t.Errorf("expected ErrJobHandlerFailure, got %v", err)
	}
	if got := err.Error(); got != "soulbond: job handler failed: panic in panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	j := &job.Job{Type: "normal", ID: id.NewJobID()}

	called := false
	err := mw(context.Background(), j, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		err       error
		wantLevel string
		wantMsg   string
	}{
		{"success", 1, nil, "INFO", "job completed"},
		{"retryable", 1, errors.New("upstream busy"), "WARN", "job failed"},
		{"exhausted", 3, errors.New("upstream busy"), "ERROR", "job failed"},
		{"permanent", 1, job.Permanent(errors.New("bad payload")), "ERROR", "job failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			j := &job.Job{Type: "chat.completion", ID: id.NewJobID(), UserID: "u1", Attempts: tt.attempts, MaxAttempts: 3}

			err := middleware.Logging(logger)(context.Background(), j, func(_ context.Context) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}

			var line map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
				t.Fatalf("decode %q: %v", buf.String(), err)
			}
			if line["level"] != tt.wantLevel || line["msg"] != tt.wantMsg {
				t.Errorf("logged %v %q, want %s %q", line["level"], line["msg"], tt.wantLevel, tt.wantMsg)
			}
			if line["user_id"] != "u1" {
				t.Errorf("user_id = %v", line["user_id"])
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name     string
		attempts int
		max      int
		err      error
		want     string
	}{
		{"ok", 1, 3, nil, middleware.OutcomeOK},
		{"retry", 1, 3, base, middleware.OutcomeRetry},
		{"timeout", 1, 3, fmt.Errorf("call: %w", context.DeadlineExceeded), middleware.OutcomeTimeout},
		{"exhausted", 3, 3, base, middleware.OutcomeExhausted},
		{"exhausted beats timeout", 3, 3, context.DeadlineExceeded, middleware.OutcomeExhausted},
		{"permanent", 1, 3, job.Permanent(base), middleware.OutcomePermanent},
		{"no max", 9, 0, base, middleware.OutcomeRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &job.Job{Attempts: tt.attempts, MaxAttempts: tt.max}
			if got := middleware.Outcome(j, tt.err); got != tt.want {
				t.Errorf("Outcome = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUser_CarriesUserID(t *testing.T) {
	mw := middleware.User()
	j := &job.Job{Type: "chat.completion", ID: id.NewJobID(), UserID: "user_42"}

	err := mw(context.Background(), j, func(ctx context.Context) error {
		got, ok := middleware.UserFrom(ctx)
		if !ok {
			t.Fatal("expected user in context")
		}
		if got != "user_42" {
			t.Errorf("UserFrom = %q, want %q", got, "user_42")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUser_NoOpWhenEmpty(t *testing.T) {
	mw := middleware.User()
	j := &job.Job{Type: "system", ID: id.NewJobID()}

	err := mw(context.Background(), j, func(ctx context.Context) error {
		if _, ok := middleware.UserFrom(ctx); ok {
			t.Fatal("expected no user in context for a system job")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_AppliesJobDeadline(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	j := &job.Job{Type: "slow", ID: id.NewJobID(), Timeout: 20 * time.Millisecond}

	err := mw(context.Background(), j, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeded 20ms timeout") {
		t.Errorf("error does not name the timeout: %v", err)
	}
}

func TestTimeout_ParentDeadlineNotRelabeled(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	j := &job.Job{Type: "slow", ID: id.NewJobID(), Timeout: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := mw(ctx, j, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != context.DeadlineExceeded {
		t.Fatalf("expected bare DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroMeansUnbounded(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	j := &job.Job{Type: "fast", ID: id.NewJobID()}

	err := mw(context.Background(), j, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("expected no deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
