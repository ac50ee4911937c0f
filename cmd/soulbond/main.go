// Command soulbond runs the SoulBond API and its background workers in one
// process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/admission"
	"github.com/gkouam/soulbondai-sub005/api"
	audithook "github.com/gkouam/soulbondai-sub005/audit_hook"
	"github.com/gkouam/soulbondai-sub005/auth"
	"github.com/gkouam/soulbondai-sub005/config"
	"github.com/gkouam/soulbondai-sub005/dlq"
	"github.com/gkouam/soulbondai-sub005/ext"
	"github.com/gkouam/soulbondai-sub005/job"
	"github.com/gkouam/soulbondai-sub005/jobs"
	"github.com/gkouam/soulbondai-sub005/manager"
	"github.com/gkouam/soulbondai-sub005/observability"
	"github.com/gkouam/soulbondai-sub005/plan"
	"github.com/gkouam/soulbondai-sub005/queue"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
	"github.com/gkouam/soulbondai-sub005/store"
	bunstore "github.com/gkouam/soulbondai-sub005/store/bun"
	"github.com/gkouam/soulbondai-sub005/store/memory"
	redisstore "github.com/gkouam/soulbondai-sub005/store/redis"
	"github.com/gkouam/soulbondai-sub005/throttle"
	"github.com/gkouam/soulbondai-sub005/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "soulbond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, rdb, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: migrate: %w", soulbond.ErrWorkerStartup, err)
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	extensions := ext.NewRegistry(logger)
	extensions.Register(observability.NewMetricsExtension(promReg))
	extensions.Register(audithook.New(audithook.NewSlogRecorder(logger), audithook.WithLogger(logger)))

	q := queue.New(st,
		queue.WithConfig(cfg.Runtime()),
		queue.WithDLQ(dlq.NewService(st, st)),
		queue.WithExtensions(extensions),
		queue.WithLogger(logger),
	)

	registry := job.NewRegistry()
	defs := jobs.Register(registry, newCompleter(cfg, logger), newNotifier(cfg, rdb, logger))

	throttles, err := cfg.Throttles()
	if err != nil {
		return err
	}
	pool := worker.NewPool(q, registry,
		worker.WithThrottle(throttle.NewManager(throttles...)),
		worker.WithExtensions(extensions),
		worker.WithLogger(logger),
	)
	mgr := manager.New(q, pool,
		manager.WithExtensions(extensions),
		manager.WithLogger(logger),
	)
	promReg.MustRegister(observability.NewStatsCollector(mgr, 2*time.Second, logger))

	catalog := plan.DefaultCatalog()
	plans, err := plan.NewCachedSource(plan.NewStoreSource(st, catalog), cfg.PlanCacheTTL, cfg.PlanCacheSize)
	if err != nil {
		return err
	}
	defer plans.Close()

	limiter := ratelimit.New(st,
		ratelimit.WithWindow(cfg.Window()),
		ratelimit.WithPolicy(cfg.Policy()),
		ratelimit.WithLogger(logger),
	)
	gate := admission.New(plans, limiter, q,
		admission.WithExtensions(extensions),
		admission.WithLogger(logger),
	)

	var authOpts []auth.Option
	if cfg.JWTIssuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.JWTIssuer))
	}
	resolver, err := auth.NewResolver([]byte(cfg.JWTSecret), append(authOpts, auth.WithAcceptableSkew(30*time.Second))...)
	if err != nil {
		return err
	}

	srv := api.New(api.Deps{
		Gate:        gate,
		Queue:       q,
		Jobs:        defs,
		Stats:       mgr,
		Tiers:       st,
		Catalog:     catalog,
		Resolver:    resolver,
		PlanCache:   plans,
		Health:      st,
		Gatherer:    promReg,
		HTTPMetrics: observability.NewHTTPMetrics(promReg),
		Logger:      logger,
	})

	if err := mgr.Start(ctx); err != nil {
		logger.Error("worker startup failed", slog.String("error", err.Error()))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("store", cfg.Store),
		)
		if err := srv.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		mgrErr := mgr.Stop(shutdownCtx)
		if errors.Is(mgrErr, soulbond.ErrDrainTimeout) {
			logger.Warn("in-flight jobs left to lease expiry", slog.String("error", mgrErr.Error()))
			mgrErr = nil
		}
		return errors.Join(httpErr, mgrErr)
	})
	return g.Wait()
}

// openStore connects the configured backend. rdb is set only for the redis
// backend.
func openStore(cfg config.Config, logger *slog.Logger) (store.Store, *goredis.Client, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: redis url: %w", soulbond.ErrWorkerStartup, err)
		}
		rdb := goredis.NewClient(opts)
		return redisstore.New(rdb, redisstore.WithLogger(logger)), rdb, func() { _ = rdb.Close() }, nil

	case config.StorePostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseURL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil, func() { _ = db.Close() }, nil
	}

	logger.Warn("using in-memory store, state is lost on restart")
	return memory.New(), nil, func() {}, nil
}

func newCompleter(cfg config.Config, logger *slog.Logger) jobs.Completer {
	if cfg.AIBaseURL == "" {
		logger.Warn("no AI backend configured, chat replies echo the prompt")
		return jobs.EchoCompleter{}
	}
	return jobs.NewHTTPCompleter(cfg.AIBaseURL,
		jobs.WithAPIKey(cfg.AIAPIKey),
		jobs.WithHTTPTimeout(cfg.AITimeout),
	)
}

func newNotifier(cfg config.Config, rdb *goredis.Client, logger *slog.Logger) jobs.Notifier {
	if rdb == nil {
		return jobs.NewLogNotifier(logger)
	}
	return jobs.NewRedisNotifier(rdb, cfg.NotifyChannelPrefix)
}
