package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/middleware"
)

// Job types.
const (
	TypeChatCompletion = "chat.completion"
	TypeNotification   = "notification.send"
)

// Notification kinds.
const (
	KindChatReply   = "chat.reply"
	KindPlanChanged = "plan.changed"
)

// ErrNoUser is returned by a chat handler running without a job user.
var ErrNoUser = errors.New("jobs: job has no user")

// ChatMessage is the payload of a chat.completion job.
type ChatMessage struct {
	CompanionID string    `json:"companion_id"`
	Content     string    `json:"content"`
	Voice       bool      `json:"voice,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// Notification is pushed to a user's devices.
type Notification struct {
	UserID string         `json:"user_id"`
	Kind   string         `json:"kind"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// CompletionRequest asks the AI backend for a companion reply.
type CompletionRequest struct {
	UserID      string `json:"user_id"`
	CompanionID string `json:"companion_id"`
	Prompt      string `json:"prompt"`
	Voice       bool   `json:"voice,omitempty"`
}

// Completion is the AI backend's reply.
type Completion struct {
	Text     string `json:"text"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Completer produces companion replies.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ChatCompletion returns the definition of chat.completion jobs: ask the
// completer for a reply and notify the user with it.
func ChatCompletion(c Completer, n Notifier, opts ...job.Option) *job.Definition[ChatMessage] {
	return job.NewDefinition(TypeChatCompletion, func(ctx context.Context, msg ChatMessage) error {
		userID, ok := middleware.UserFrom(ctx)
		if !ok {
			return job.Permanent(ErrNoUser)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return job.Permanent(errors.New("jobs: empty chat message"))
		}

		reply, err := c.Complete(ctx, CompletionRequest{
			UserID:      userID,
			CompanionID: msg.CompanionID,
			Prompt:      msg.Content,
			Voice:       msg.Voice,
		})
		if err != nil {
			return fmt.Errorf("complete chat for %s: %w", msg.CompanionID, err)
		}

		data := map[string]any{"companion_id": msg.CompanionID}
		if reply.AudioURL != "" {
			data["audio_url"] = reply.AudioURL
		}
		return n.Notify(ctx, Notification{
			UserID: userID,
			Kind:   KindChatReply,
			Body:   reply.Text,
			Data:   data,
			At:     time.Now().UTC(),
		})
	}, opts...)
}

// SendNotification returns the definition of notification.send jobs.
func SendNotification(n Notifier, opts ...job.Option) *job.Definition[Notification] {
	return job.NewDefinition(TypeNotification, func(ctx context.Context, note Notification) error {
		if note.UserID == "" {
			return job.Permanent(errors.New("jobs: notification has no user"))
		}
		if note.At.IsZero() {
			note.At = time.Now().UTC()
		}
		return n.Notify(ctx, note)
	}, opts...)
}

// Defaults applied to every enqueue of each job type.
var (
	ChatCompletionDefaults = []job.Option{job.WithTimeout(time.Minute)}
	NotificationDefaults   = []job.Option{job.WithMaxAttempts(3)}
)

// Definitions are the typed job definitions producers enqueue through, so
// each type's defaults travel with every job.
type Definitions struct {
	Chat         *job.Definition[ChatMessage]
	Notification *job.Definition[Notification]
}

// NewDefinitions builds the definitions with handlers over c and n.
func NewDefinitions(c Completer, n Notifier) Definitions {
	return Definitions{
		Chat:         ChatCompletion(c, n, ChatCompletionDefaults...),
		Notification: SendNotification(n, NotificationDefaults...),
	}
}

// Register binds every job handler to reg and returns the definitions to
// enqueue with.
func Register(reg *job.Registry, c Completer, n Notifier) Definitions {
	defs := NewDefinitions(c, n)
	job.RegisterDefinition(reg, defs.Chat)
	job.RegisterDefinition(reg, defs.Notification)
	return defs
}
