package queue

import (
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/backoff"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/ext"
)

// Option configures a Service.
type Option func(*Service)

// WithConfig sets poll interval, lease duration, default attempt budget
// and the default backoff parameters.
func WithConfig(cfg soulbond.Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithDLQ sets the dead letter service. Without one, dead-lettered jobs
// keep their terminal state but no entry is recorded.
func WithDLQ(d *dlq.Service) Option {
	return func(s *Service) { s.dlq = d }
}

// WithBackoff overrides the retry delay strategy. The default is
// backoff.Exponential over Config.BackoffBase and Config.BackoffMax.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *Service) { s.backoff = b }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}
