package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/admission"
	"github.com/gkouam/soulbondai-sub005/auth"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/jobs"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/queue"
)

// ──────────────────────────────────────────────────
// Producer routes
// ──────────────────────────────────────────────────

// ChatMessageRequest is the body of POST /v1/chat/messages.
type ChatMessageRequest struct {
	CompanionID string `json:"companion_id" validate:"required,max=64"`
	Content     string `json:"content" validate:"required,max=4000"`
	Voice       bool   `json:"voice"`
}

// ChatMessageResponse acknowledges an accepted chat message.
type ChatMessageResponse struct {
	JobID     id.JobID  `json:"job_id"`
	Remaining int64     `json:"remaining"`
	Limit     int64     `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
	Degraded  bool      `json:"degraded"`
}

func (s *Server) sendChatMessage(c echo.Context) error {
	var req ChatMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p := principal(c)

	var features []plan.Feature
	if req.Voice {
		features = append(features, plan.FeatureVoice)
	}
	res, err := admission.Submit(c.Request().Context(), s.deps.Gate, s.deps.Jobs.Chat, admission.Request{
		UserID:   p.UserID,
		Resource: plan.ResourceChatMessage,
		Features: features,
	}, jobs.ChatMessage{
		CompanionID: req.CompanionID,
		Content:     req.Content,
		Voice:       req.Voice,
		SentAt:      s.now().UTC(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, ChatMessageResponse{
		JobID:     res.Job.ID,
		Remaining: res.Decision.Remaining,
		Limit:     res.Decision.Limit,
		ResetsAt:  res.Decision.ResetAt,
		Degraded:  res.Decision.Degraded,
	})
}

func (s *Server) usage(c echo.Context) error {
	resource := plan.Resource(c.QueryParam("resource"))
	if resource == "" {
		resource = plan.ResourceChatMessage
	}
	u, err := s.deps.Gate.Usage(c.Request().Context(), principal(c).UserID, resource)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) listPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"plans": s.deps.Catalog.Plans()})
}

// ──────────────────────────────────────────────────
// Admin routes
// ──────────────────────────────────────────────────

func (s *Server) queueStats(c echo.Context) error {
	snap, err := s.deps.Stats.GetQueueStats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) getJob(c echo.Context) error {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		return fmt.Errorf("%w: %w", soulbond.ErrInvalidRequest, err)
	}
	j, err := s.deps.Queue.Get(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, j)
}

// DLQListResponse is a page of dead letter entries.
type DLQListResponse struct {
	Entries []*dlq.Entry `json:"entries"`
	Total   int64        `json:"total"`
}

func (s *Server) listDLQ(c echo.Context) error {
	d := s.deps.Queue.DLQ()
	if d == nil {
		return soulbond.ErrStoreRequired
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	limit = min(max(limit, 1), 500)

	ctx := c.Request().Context()
	entries, err := d.List(ctx, dlq.ListOpts{Limit: limit, Offset: offset, JobType: c.QueryParam("job_type")})
	if err != nil {
		return soulbond.Unavailable("list dlq", err)
	}
	total, err := d.Count(ctx)
	if err != nil {
		return soulbond.Unavailable("count dlq", err)
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	return c.JSON(http.StatusOK, DLQListResponse{Entries: entries, Total: total})
}

func (s *Server) getDLQ(c echo.Context) error {
	d := s.deps.Queue.DLQ()
	if d == nil {
		return soulbond.ErrStoreRequired
	}
	entryID, err := id.ParseDLQID(c.Param("entryId"))
	if err != nil {
		return fmt.Errorf("%w: %w", soulbond.ErrInvalidRequest, err)
	}
	entry, err := d.Get(c.Request().Context(), entryID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) replayDLQ(c echo.Context) error {
	entryID, err := id.ParseDLQID(c.Param("entryId"))
	if err != nil {
		return fmt.Errorf("%w: %w", soulbond.ErrInvalidRequest, err)
	}
	j, err := s.deps.Queue.Replay(c.Request().Context(), entryID)
	if err != nil {
		return err
	}
	s.logger.Info("dlq entry replayed",
		slog.String("entry_id", entryID.String()),
		slog.String("job_id", j.ID.String()),
		slog.String("by", principal(c).UserID),
	)
	return c.JSON(http.StatusCreated, j)
}

// SetPlanRequest is the body of PUT /v1/admin/users/:userId/plan.
type SetPlanRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free basic premium ultimate"`
}

// SetPlanResponse echoes the user's new plan.
type SetPlanResponse struct {
	UserID string    `json:"user_id"`
	Plan   plan.Plan `json:"plan"`
}

func (s *Server) setUserPlan(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return fmt.Errorf("%w: user id required", soulbond.ErrInvalidRequest)
	}
	var req SetPlanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tier, err := plan.ParseTier(req.Tier)
	if err != nil {
		return fmt.Errorf("%w: %w", soulbond.ErrInvalidRequest, err)
	}
	p, ok := s.deps.Catalog.Plan(tier)
	if !ok {
		return fmt.Errorf("%w: tier %q not offered", soulbond.ErrInvalidRequest, tier)
	}

	ctx := c.Request().Context()
	if err := s.deps.Tiers.SetUserTier(ctx, userID, tier); err != nil {
		return soulbond.Unavailable("set user tier", err)
	}
	if s.deps.PlanCache != nil {
		s.deps.PlanCache.Invalidate(userID)
	}
	s.logger.Info("user plan updated",
		slog.String("user_id", userID),
		slog.String("tier", string(tier)),
	)

	// The notification is best effort once the tier is stored; only store
	// unavailability is tolerated, anything else is a bug worth a 5xx.
	_, err = queue.Enqueue(ctx, s.deps.Queue, s.deps.Jobs.Notification, jobs.Notification{
		UserID: userID,
		Kind:   jobs.KindPlanChanged,
		Body:   "Your plan is now " + p.Name,
		Data:   map[string]any{"tier": tier},
		At:     s.now().UTC(),
	}, job.WithUser(userID))
	switch {
	case err == nil:
	case errors.Is(err, soulbond.ErrQueueUnavailable):
		s.logger.Warn("plan change notification not enqueued",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	default:
		return fmt.Errorf("enqueue plan change notification: %w", err)
	}

	return c.JSON(http.StatusOK, SetPlanResponse{UserID: userID, Plan: p})
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.FromContext(c.Request().Context())
	return p
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", soulbond.ErrInvalidRequest, name)
	}
	return n, nil
}
