package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
)

var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobEnqueued     = (*Extension)(nil)
	_ ext.JobStarted      = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobRetrying     = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.LeaseExpired    = (*Extension)(nil)
	_ ext.QuotaChecked    = (*Extension)(nil)
	_ ext.Shutdown        = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension turns lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension recording through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		now:      time.Now,
	}
	WithActions(DefaultActions()...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess, j, nil,
		"replay_of", replayOf(j),
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j, nil,
		"worker_id", j.WorkerID.String(),
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.recordJob(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j, nil,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, jobErr error, next time.Time) error {
	return e.recordJob(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure, j, jobErr,
		"next_attempt_at", next.UTC().Format(time.RFC3339),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, jobErr error) error {
	return e.recordJob(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure, j, jobErr)
}

// OnLeaseExpired implements ext.LeaseExpired.
func (e *Extension) OnLeaseExpired(ctx context.Context, j *job.Job) error {
	return e.recordJob(ctx, ActionLeaseExpired, SeverityWarning, OutcomeFailure, j, nil,
		"worker_id", j.WorkerID.String(),
	)
}

// ── Quota and queue hooks ───────────────────────────

// OnQuotaChecked implements ext.QuotaChecked. Admitted requests are not
// recorded unless the limiter ran degraded.
func (e *Extension) OnQuotaChecked(ctx context.Context, userID string, tier plan.Tier, resource plan.Resource, d ratelimit.Decision) error {
	switch {
	case !d.Allowed:
		return e.record(ctx, &AuditEvent{
			Action: ActionQuotaDenied, Resource: ResourceUser, Category: CategoryQuota,
			ResourceID: userID, UserID: userID,
			Outcome: OutcomeFailure, Severity: SeverityWarning,
		}, nil,
			"tier", string(tier),
			"resource", string(resource),
			"limit", d.Limit,
			"retry_after_seconds", d.RetryAfterSeconds(),
		)
	case d.Degraded:
		return e.record(ctx, &AuditEvent{
			Action: ActionQuotaDegraded, Resource: ResourceUser, Category: CategoryQuota,
			ResourceID: userID, UserID: userID,
			Outcome: OutcomeSuccess, Severity: SeverityWarning,
		}, nil,
			"tier", string(tier),
			"resource", string(resource),
		)
	}
	return nil
}

// OnShutdown implements ext.Shutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, &AuditEvent{
		Action: ActionShutdown, Resource: ResourceQueue, Category: CategoryQueue,
		Outcome: OutcomeSuccess, Severity: SeverityInfo,
	}, nil)
}

// ── Internal helpers ────────────────────────────────

func (e *Extension) recordJob(ctx context.Context, action, severity, outcome string, j *job.Job, err error, kv ...any) error {
	kv = append(kv,
		"job_type", j.Type,
		"attempt", j.Attempts,
		"max_attempts", j.MaxAttempts,
	)
	return e.record(ctx, &AuditEvent{
		Action: action, Resource: ResourceJob, Category: CategoryJob,
		ResourceID: j.ID.String(), UserID: j.UserID,
		Outcome: outcome, Severity: severity,
	}, err, kv...)
}

// record fills in metadata and sends evt if its action is enabled.
// Recorder failures are logged and never returned.
func (e *Extension) record(ctx context.Context, evt *AuditEvent, err error, kv ...any) error {
	if !e.enabled[evt.Action] {
		return nil
	}

	evt.Metadata = make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		if v := kv[i+1]; v != "" {
			evt.Metadata[key] = v
		}
	}
	if err != nil {
		evt.Reason = err.Error()
	}
	evt.At = e.now().UTC()

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

func replayOf(j *job.Job) string {
	if j.ReplayOf.IsNil() {
		return ""
	}
	return j.ReplayOf.String()
}

// SlogRecorder writes audit events to a logger under the "audit" group.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a SlogRecorder.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	attrs := []any{
		slog.String("action", evt.Action),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("outcome", evt.Outcome),
	}
	if evt.UserID != "" {
		attrs = append(attrs, slog.String("user_id", evt.UserID))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if len(evt.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", evt.Metadata))
	}
	r.logger.Log(ctx, level, "audit", slog.Group("audit", attrs...))
	return nil
}
