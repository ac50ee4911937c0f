package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/store/memory"
)

func newDeadJob(jobType string, payload []byte) *job.Job {
	j := job.New(jobType, payload, job.Apply(job.DefaultOptions(), job.WithMaxAttempts(3), job.WithUser("u1")), time.Now())
	j.State = job.StateDeadLettered
	j.Attempts = 3
	j.LastError = "upstream 500"
	return j
}

func TestService_Push_BuildsEntryFromJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j := newDeadJob("chat-completion", []byte(`{"message":"hi"}`))
	entry, err := svc.Push(ctx, j, errors.New("completion timeout"))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := svc.List(ctx, dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("expected the pushed entry, got %d entries", len(entries))
	}

	got := entries[0]
	if got.JobID != j.ID {
		t.Errorf("JobID = %v, want %v", got.JobID, j.ID)
	}
	if got.JobType != "chat-completion" {
		t.Errorf("JobType = %q", got.JobType)
	}
	if got.Error != "completion timeout" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.Attempts != 3 || got.MaxAttempts != 3 {
		t.Errorf("Attempts = %d/%d, want 3/3", got.Attempts, got.MaxAttempts)
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q", got.UserID)
	}
	if got.FailedAt.IsZero() || got.ReplayedAt != nil {
		t.Errorf("FailedAt=%v ReplayedAt=%v", got.FailedAt, got.ReplayedAt)
	}

	if n, _ := svc.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestService_Replay(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	j := newDeadJob("notification", []byte(`{"user_id":"u1"}`))
	entry, err := svc.Push(ctx, j, errors.New("boom"))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	replayed, err := svc.Replay(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"fresh id", replayed.ID != j.ID},
		{"pending", replayed.State == job.StatePending},
		{"zero attempts", replayed.Attempts == 0},
		{"same budget", replayed.MaxAttempts == 3},
		{"same type", replayed.Type == "notification"},
		{"same payload", string(replayed.Payload) == `{"user_id":"u1"}`},
		{"same user", replayed.UserID == "u1"},
		{"links original", replayed.ReplayOf == j.ID},
	}
	for _, tt := range tests {
		if !tt.ok {
			t.Errorf("replayed job: %s", tt.name)
		}
	}

	stored, err := s.GetJob(ctx, replayed.ID)
	if err != nil || stored.State != job.StatePending {
		t.Fatalf("replayed job not enqueued: %v", err)
	}

	marked, _ := svc.Get(ctx, entry.ID)
	if marked.ReplayedAt == nil || marked.ReplayJobID != replayed.ID {
		t.Fatal("entry not marked replayed")
	}

	if _, err := svc.Replay(ctx, entry.ID); !errors.Is(err, soulbond.ErrAlreadyReplayed) {
		t.Fatalf("second replay: got %v, want ErrAlreadyReplayed", err)
	}
}

func TestService_ReplayNotFound(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)

	if _, err := svc.Replay(context.Background(), id.NewDLQID()); !errors.Is(err, soulbond.ErrDLQNotFound) {
		t.Fatalf("got %v, want ErrDLQNotFound", err)
	}
}

func TestService_ListNewestFirst(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, s)
	ctx := context.Background()

	first, _ := svc.Push(ctx, newDeadJob("chat-completion", nil), errors.New("a"))
	time.Sleep(2 * time.Millisecond)
	second, _ := svc.Push(ctx, newDeadJob("chat-completion", nil), errors.New("b"))

	entries, err := svc.List(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Fatal("entries not newest first")
	}
}
