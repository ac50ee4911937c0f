package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/jobs"
	"github.com/gkouam/soulbondai-sub005/middleware"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []jobs.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note jobs.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type stubCompleter struct {
	reply jobs.Completion
	err   error
	got   jobs.CompletionRequest
}

func (c *stubCompleter) Complete(_ context.Context, req jobs.CompletionRequest) (jobs.Completion, error) {
	c.got = req
	return c.reply, c.err
}

func run(t *testing.T, reg *job.Registry, jobType, userID string, payload any) error {
	t.Helper()
	h, ok := reg.Get(jobType)
	if !ok {
		t.Fatalf("no handler for %s", jobType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if userID != "" {
		ctx = middleware.WithUser(ctx, userID)
	}
	return h(ctx, data)
}

// ──────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	reg := job.NewRegistry()
	jobs.Register(reg, jobs.EchoCompleter{}, &recordingNotifier{})
	types := reg.Types()
	if len(types) != 2 || types[0] != jobs.TypeChatCompletion || types[1] != jobs.TypeNotification {
		t.Fatalf("types = %v", types)
	}
}

func TestRegister_DefinitionsCarryDefaults(t *testing.T) {
	defs := jobs.Register(job.NewRegistry(), jobs.EchoCompleter{}, &recordingNotifier{})

	note := job.Apply(job.DefaultOptions(), defs.Notification.Opts...)
	if note.MaxAttempts != 3 {
		t.Fatalf("notification MaxAttempts = %d, want 3", note.MaxAttempts)
	}
	if defs.Notification.Type != jobs.TypeNotification {
		t.Fatalf("notification type = %q", defs.Notification.Type)
	}

	chat := job.Apply(job.DefaultOptions(), defs.Chat.Opts...)
	if chat.Timeout != time.Minute {
		t.Fatalf("chat Timeout = %v, want 1m", chat.Timeout)
	}
	if chat.MaxAttempts != 5 {
		t.Fatalf("chat MaxAttempts = %d, want 5", chat.MaxAttempts)
	}
}

func TestChatCompletion_NotifiesReply(t *testing.T) {
	c := &stubCompleter{reply: jobs.Completion{Text: "hello there", AudioURL: "https://cdn/a.mp3"}}
	n := &recordingNotifier{}
	reg := job.NewRegistry()
	jobs.Register(reg, c, n)

	err := run(t, reg, jobs.TypeChatCompletion, "user_1", jobs.ChatMessage{CompanionID: "luna", Content: "hi", Voice: true})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if c.got.UserID != "user_1" || c.got.CompanionID != "luna" || c.got.Prompt != "hi" || !c.got.Voice {
		t.Fatalf("completion request = %+v", c.got)
	}
	if len(n.notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.notes))
	}
	note := n.notes[0]
	if note.UserID != "user_1" || note.Kind != jobs.KindChatReply || note.Body != "hello there" {
		t.Fatalf("notification = %+v", note)
	}
	if note.Data["audio_url"] != "https://cdn/a.mp3" {
		t.Fatalf("data = %v", note.Data)
	}
}

func TestChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		msg       jobs.ChatMessage
		complErr  error
		permanent bool
	}{
		{"no user", "", jobs.ChatMessage{Content: "hi"}, nil, true},
		{"empty content", "user_1", jobs.ChatMessage{Content: "  "}, nil, true},
		{"backend down", "user_1", jobs.ChatMessage{Content: "hi"}, errors.New("connection refused"), false},
		{"backend rejects", "user_1", jobs.ChatMessage{Content: "hi"}, job.Permanent(errors.New("400")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := job.NewRegistry()
			jobs.Register(reg, &stubCompleter{err: tt.complErr}, &recordingNotifier{})
			err := run(t, reg, jobs.TypeChatCompletion, tt.userID, tt.msg)
			if err == nil {
				t.Fatal("expected error")
			}
			if job.IsPermanent(err) != tt.permanent {
				t.Fatalf("permanent = %v, want %v (%v)", job.IsPermanent(err), tt.permanent, err)
			}
		})
	}
}

func TestSendNotification(t *testing.T) {
	n := &recordingNotifier{}
	reg := job.NewRegistry()
	jobs.Register(reg, jobs.EchoCompleter{}, n)

	err := run(t, reg, jobs.TypeNotification, "", jobs.Notification{UserID: "user_1", Kind: jobs.KindPlanChanged, Body: "premium"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(n.notes) != 1 || n.notes[0].At.IsZero() {
		t.Fatalf("notes = %+v", n.notes)
	}

	err = run(t, reg, jobs.TypeNotification, "", jobs.Notification{Kind: jobs.KindPlanChanged})
	if !job.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// HTTPCompleter
// ──────────────────────────────────────────────────

func TestHTTPCompleter(t *testing.T) {
	var gotAuth string
	var gotReq jobs.CompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch gotReq.Prompt {
		case "bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_prompt","message":"prompt rejected"}`))
		case "busy":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
		case "down":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{}`))
		default:
			_, _ = w.Write([]byte(`{"text":"reply to ` + gotReq.Prompt + `"}`))
		}
	}))
	defer srv.Close()

	c := jobs.NewHTTPCompleter(srv.URL, jobs.WithAPIKey("k-123"), jobs.WithHTTPTimeout(5*time.Second))
	ctx := context.Background()

	out, err := c.Complete(ctx, jobs.CompletionRequest{UserID: "u1", CompanionID: "luna", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "reply to hi" {
		t.Fatalf("text = %q", out.Text)
	}
	if gotAuth != "Bearer k-123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotReq.CompanionID != "luna" || gotReq.UserID != "u1" {
		t.Fatalf("request = %+v", gotReq)
	}

	tests := []struct {
		prompt    string
		permanent bool
	}{
		{"bad", true},
		{"busy", false},
		{"down", false},
	}
	for _, tt := range tests {
		_, err := c.Complete(ctx, jobs.CompletionRequest{Prompt: tt.prompt})
		if err == nil {
			t.Fatalf("%s: expected error", tt.prompt)
		}
		if job.IsPermanent(err) != tt.permanent {
			t.Fatalf("%s: permanent = %v, want %v (%v)", tt.prompt, job.IsPermanent(err), tt.permanent, err)
		}
	}
}

func TestHTTPCompleter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := jobs.NewHTTPCompleter(url).Complete(context.Background(), jobs.CompletionRequest{Prompt: "hi"})
	if err == nil || job.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// RedisNotifier
// ──────────────────────────────────────────────────

func TestRedisNotifier_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	n := jobs.NewRedisNotifier(rdb, "")
	if got := n.Channel("user_1"); got != "soulbond:notify:user_1" {
		t.Fatalf("channel = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	notes, err := n.Subscribe(ctx, "user_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := n.Notify(ctx, jobs.Notification{UserID: "user_2", Kind: jobs.KindChatReply, Body: "not yours"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, jobs.Notification{UserID: "user_1", Kind: jobs.KindChatReply, Body: "hello"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case note := <-notes:
		if note.UserID != "user_1" || note.Body != "hello" {
			t.Fatalf("note = %+v", note)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}

	cancel()
	for range notes {
	}
}

func TestRedisNotifier_PublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	err := jobs.NewRedisNotifier(rdb, "custom:").Notify(context.Background(), jobs.Notification{UserID: "u1"})
	if err == nil {
		t.Fatal("expected publish error")
	}
}
