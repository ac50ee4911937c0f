package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix prefixes the per-user notification channel.
const DefaultChannelPrefix = "soulbond:notify:"

// RedisNotifier publishes notifications on a per-user Redis channel that
// the realtime gateway subscribes to.
type RedisNotifier struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a notifier publishing through rdb.
func NewRedisNotifier(rdb redis.UniversalClient, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{rdb: rdb, prefix: prefix}
}

// Channel returns the channel notifications for userID are published on.
func (n *RedisNotifier) Channel(userID string) string { return n.prefix + userID }

// Notify implements Notifier. Having no subscriber is not an error.
func (n *RedisNotifier) Notify(ctx context.Context, note Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("jobs/notifier: marshal: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.Channel(note.UserID), data).Err(); err != nil {
		return fmt.Errorf("jobs/notifier: publish: %w", err)
	}
	return nil
}

// Subscribe streams notifications for userID until ctx is done. The
// returned channel is closed when the subscription ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) (<-chan Notification, error) {
	sub := n.rdb.Subscribe(ctx, n.Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("jobs/notifier: subscribe: %w", err)
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var note Notification
				if err := json.Unmarshal([]byte(m.Payload), &note); err != nil {
					continue
				}
				select {
				case out <- note:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LogNotifier writes notifications to a logger. It stands in for Redis
// when the process runs without one.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("user_id", note.UserID),
		slog.String("kind", note.Kind),
		slog.Int("body_len", len(note.Body)),
	)
	return nil
}
