package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gkouam/soulbondai-sub005/admission"
	"github.com/gkouam/soulbondai-sub005/auth"
	"github.com/gkouam/soulbondai-sub005/jobs"
	"github.com/gkouam/soulbondai-sub005/observability"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/queue"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Invalidator drops cached plan lookups for a user.
type Invalidator interface {
	Invalidate(userID string)
}

// Deps are the components the server routes to.
type Deps struct {
	Gate     *admission.Gate
	Queue    *queue.Service
	Stats    observability.StatsSource
	Tiers    plan.TierStore
	Catalog  *plan.Catalog
	Resolver *auth.Resolver

	// Jobs are the definitions chat and plan notifications are enqueued
	// with. The API only uses their types and default options; the zero
	// value falls back to jobs.NewDefinitions without handlers.
	Jobs jobs.Definitions

	// Optional.
	PlanCache   Invalidator
	Health      Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *observability.HTTPMetrics
	Logger      *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	logger *slog.Logger
	now    func() time.Time
}

// New builds the server and registers every route.
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		echo:   echo.New(),
		logger: deps.Logger,
		now:    time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.deps.Catalog == nil {
		s.deps.Catalog = plan.DefaultCatalog()
	}
	if s.deps.Jobs.Chat == nil || s.deps.Jobs.Notification == nil {
		s.deps.Jobs = jobs.NewDefinitions(nil, nil)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
	e.HTTPErrorHandler = s.HandleError

	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error("panic in http handler",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
				slog.String("stack", string(stack)),
			)
			return err
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			s.logger.LogAttrs(c.Request().Context(), level, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	if deps.HTTPMetrics != nil {
		e.Use(deps.HTTPMetrics.Middleware())
	}

	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) routes() {
	e := s.echo

	e.GET("/healthz", s.healthz)
	if s.deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1", auth.Middleware(s.deps.Resolver))
	v1.GET("/plans", s.listPlans)

	chat := auth.RequireCapability(auth.CapChatSend)
	v1.POST("/chat/messages", s.sendChatMessage, chat)
	v1.GET("/usage", s.usage, chat)

	admin := auth.RequireCapability(auth.CapQueueAdmin)
	v1.GET("/admin/queue/stats", s.queueStats, admin)
	v1.GET("/admin/jobs/:jobId", s.getJob, admin)
	v1.GET("/admin/dlq", s.listDLQ, admin)
	v1.GET("/admin/dlq/:entryId", s.getDLQ, admin)
	v1.POST("/admin/dlq/:entryId/replay", s.replayDLQ, admin)

	v1.PUT("/admin/users/:userId/plan", s.setUserPlan, auth.RequireCapability(auth.CapBillingSync))
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i any) error { return r.v.Struct(i) }

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func (s *Server) healthz(c echo.Context) error {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
