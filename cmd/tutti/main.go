package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tutti-stock/tutti-stock/internal/app"
	"github.com/tutti-stock/tutti-stock/internal/audit"
	"github.com/tutti-stock/tutti-stock/internal/counts"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/observability"
	"github.com/tutti-stock/tutti-stock/internal/planner"
	"github.com/tutti-stock/tutti-stock/internal/platform/cache"
	"github.com/tutti-stock/tutti-stock/internal/platform/db"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/jobs"
	"github.com/tutti-stock/tutti-stock/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled or startup fails.
func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, level cache disabled", slog.Any("error", err))
	} else if client != nil {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, dbpool, redisClient, metrics, logger)
	if err := services.MasterData.CheckWarehouse(ctx); err != nil {
		return fmt.Errorf("check warehouse: %w", err)
	}

	rbacMiddleware := rbac.Middleware{Service: services.RBAC, Logger: logger}

	var jobHandler *jobs.Handler
	if cfg.Redis().Enabled() {
		inspector := asynq.NewInspector(cfg.Redis().Asynq())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		MasterDataHandler:  masterdata.NewHandler(logger, services.MasterData, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, services.Inventory, rbacMiddleware),
		CountsHandler:      counts.NewHandler(logger, services.Counts, rbacMiddleware),
		PlannerHandler:     planner.NewHandler(logger, services.Planner, rbacMiddleware),
		ReportHandler:      report.NewHandler(services.Reports, logger, rbacMiddleware),
		AuditHandler:       audit.NewHandler(services.Timeline, logger, rbacMiddleware),
		JobHandler:         jobHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(services.RBAC),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
