// Package main is the entrypoint for the Faultline API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/alert"
	"github.com/vikramshenoy/faultline/internal/alert/notify"
	"github.com/vikramshenoy/faultline/internal/api"
	"github.com/vikramshenoy/faultline/internal/api/handler"
	mw "github.com/vikramshenoy/faultline/internal/api/middleware"
	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/config"
	"github.com/vikramshenoy/faultline/internal/ingest"
	"github.com/vikramshenoy/faultline/internal/issue"
	"github.com/vikramshenoy/faultline/internal/queue"
	"github.com/vikramshenoy/faultline/internal/rollup"
	"github.com/vikramshenoy/faultline/internal/session"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database and run migrations
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)

	// 3. Redis is optional: without it the cache, locks, queues, and session
	//    tracking degrade in place rather than failing startup.
	var (
		appCache     cache.Cache    = cache.NullCache{}
		locker       cache.Locker   = cache.NullLocker{}
		sessionStore session.Store  = session.NullStore{}
		dispatcher   queue.Dispatcher
		redisDisp    *queue.RedisDispatcher
	)
	if cfg.Redis.URL != "" {
		client, err := cache.NewClient(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		appCache = cache.NewRedisCache(client)
		locker = cache.NewRedisLocker(client)
		sessionStore = session.NewRedisStore(client)
		redisDisp = queue.NewRedisDispatcher(client, cfg.Queue.MaxAttempts, cfg.Queue.RetryBaseDelay)
		dispatcher = redisDisp
	} else {
		slog.Warn("REDIS_URL not set, running with inline dispatch and no rate limiting")
		dispatcher = queue.NewInlineDispatcher()
	}

	// 4. Domain components
	sessions := session.NewTracker(sessionStore, cfg.Sessions.LivenessTimeout)
	issues := issue.NewAggregator(pgStore, locker)
	engine := alert.NewEngine(pgStore, locker, notify.Config{
		HTTPTimeout:    cfg.Alerts.HTTPTimeout,
		SendgridAPIKey: cfg.Email.SendgridAPIKey,
		EmailFrom:      cfg.Email.FromAddress,
	}, cfg.Alerts.CooldownDefault)
	rollups := rollup.NewAggregator(pgStore, cfg.Rollup.QueryTimeout)
	pipeline := ingest.NewPipeline(pgStore, issues, engine, sessions, dispatcher, cfg.Queue.RollupDelay)
	pipeline.RegisterHandlers(rollups)

	// 5. Optional alert rule seeds
	if cfg.Alerts.RuleSeedFile != "" {
		rules, err := alert.LoadRuleFile(cfg.Alerts.RuleSeedFile)
		if err != nil {
			return fmt.Errorf("load rule seed file: %w", err)
		}
		if err := alert.SeedRules(ctx, pgStore, rules); err != nil {
			return fmt.Errorf("seed alert rules: %w", err)
		}
		slog.Info("alert rules seeded", "count", len(rules))
	}

	// 6. Background loops
	var wg sync.WaitGroup
	if redisDisp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			redisDisp.Run(ctx, map[string]int{
				queue.QueueEvents:  cfg.Queue.EventWorkers,
				queue.QueueLogs:    cfg.Queue.LogWorkers,
				queue.QueueTraces:  cfg.Queue.TraceWorkers,
				queue.QueueRollups: cfg.Queue.RollupWorkers,
			})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		thresholdLoop(ctx, pgStore, engine, cfg.Alerts.CheckInterval)
	}()

	// 7. HTTP surface
	deps := api.Dependencies{
		Auth:       mw.NewAuth(pgStore),
		RateLimit:  mw.NewRateLimit(appCache, cfg.Server.RequestsPerMinute),
		AdminToken: cfg.Server.AdminToken,

		HealthHandler: handler.NewHealthHandler(pgStore, appCache),

		IngestEventHandler: handler.NewIngestEventHandler(pipeline),
		IngestLogHandler:   handler.NewIngestLogHandler(pipeline),
		IngestSpanHandler:  handler.NewIngestSpanHandler(pipeline),

		ListIssuesHandler:  handler.NewListIssuesHandler(pgStore),
		GetIssueHandler:    handler.NewGetIssueHandler(pgStore),
		UpdateIssueHandler: handler.NewUpdateIssueHandler(pgStore, issues),
		DeleteIssueHandler: handler.NewDeleteIssueHandler(pgStore, issues),
		MergeIssuesHandler: handler.NewMergeIssuesHandler(issues),

		ListAlertRulesHandler:  handler.NewListAlertRulesHandler(pgStore),
		CreateAlertRuleHandler: handler.NewCreateAlertRuleHandler(pgStore),
		ListAlertsHandler:      handler.NewListAlertsHandler(pgStore),
		AckAlertHandler:        handler.NewAckAlertHandler(pgStore),

		ProjectStatsHandler:    handler.NewProjectStatsHandler(pgStore),
		ProjectSessionsHandler: handler.NewProjectSessionsHandler(sessions),

		ListProjectsHandler:    handler.NewListProjectsHandler(pgStore),
		CreateProjectHandler:   handler.NewCreateProjectHandler(pgStore),
		CreateIngestKeyHandler: handler.NewCreateIngestKeyHandler(pgStore),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	wg.Wait()
	slog.Info("server stopped gracefully")
	return nil
}

// thresholdLoop periodically evaluates threshold-style rules for every
// project that has one.
func thresholdLoop(ctx context.Context, s store.Store, engine *alert.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seen := map[uuid.UUID]bool{}
			for _, trigger := range []string{models.TriggerThreshold, models.TriggerSpike, models.TriggerCustom} {
				projectIDs, err := s.ProjectIDsWithTrigger(ctx, trigger)
				if err != nil {
					slog.Error("threshold project listing failed", "trigger", trigger, "error", err)
					continue
				}
				for _, projectID := range projectIDs {
					if seen[projectID] {
						continue
					}
					seen[projectID] = true
					if err := engine.CheckThresholds(ctx, projectID); err != nil {
						slog.Error("threshold check failed", "project_id", projectID, "error", err)
					}
				}
			}
		}
	}
}
