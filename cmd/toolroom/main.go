package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/toolroom-mes/toolroom/internal/app"
	"github.com/toolroom-mes/toolroom/internal/history"
	"github.com/toolroom-mes/toolroom/internal/observability"
	"github.com/toolroom-mes/toolroom/internal/platform/cache"
	"github.com/toolroom-mes/toolroom/internal/platform/db"
	"github.com/toolroom-mes/toolroom/internal/principals"
	"github.com/toolroom-mes/toolroom/internal/rbac"
	"github.com/toolroom-mes/toolroom/internal/shared"
	"github.com/toolroom-mes/toolroom/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokenStore := shared.NewTokenStore(redisClient, cfg.TokenTTL)
	metrics := observability.NewMetrics()

	principalRepo := principals.NewRepository(pool)
	principalService := principals.NewService(principalRepo)

	rbacRepo := rbac.NewRepository(pool)
	rbacCache := rbac.NewCache(redisClient, 10*time.Minute)
	rbacService := rbac.NewService(rbacRepo, principalService, rbacCache, logger).
		WithDecisionRecorder(metrics)
	rbacCatalog := rbac.NewCatalog(rbacRepo)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacCatalog, rbacService, rbacMiddleware)

	registry := history.NewStateRegistry()
	registerWorkflows(registry)

	historyRepo := history.NewRepository(pool)
	historyService := history.NewService(historyRepo, registry, logger).
		WithAppendObserver(metrics)
	historyHandler := history.NewHandler(logger, historyService, registry, rbacService)

	principalHandler := principals.NewHandler(logger, principalService, tokenStore, historyService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		TokenStore:        tokenStore,
		RBACHandler:       rbacHandler,
		PrincipalsHandler: principalHandler,
		HistoryHandler:    historyHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// registerWorkflows declares the legal state sets for every tracked
// entity type. The history service rejects transitions into states not
// listed here.
func registerWorkflows(registry *history.StateRegistry) {
	registry.RegisterStates("program", "draft", "review", "released", "retired")
	registry.RegisterStates("operation", "planned", "setup", "running", "paused", "completed", "aborted")
	registry.RegisterStates("setup_sheet", "draft", "approved", "superseded")
	registry.RegisterStates("tool", "available", "checked_out", "regrind", "worn", "scrapped")
	registry.RegisterStates("machine", "operational", "maintenance", "down", "decommissioned")
	registry.RegisterStates("work_order", "created", "scheduled", "in_progress", "on_hold", "completed", "cancelled")
}
