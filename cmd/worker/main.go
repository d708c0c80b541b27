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
	"golang.org/x/sync/errgroup"

	"github.com/tutti-stock/tutti-stock/internal/app"
	jobmetrics "github.com/tutti-stock/tutti-stock/internal/jobs"
	"github.com/tutti-stock/tutti-stock/internal/observability"
	"github.com/tutti-stock/tutti-stock/internal/platform/cache"
	"github.com/tutti-stock/tutti-stock/internal/platform/db"
	"github.com/tutti-stock/tutti-stock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

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

	registry := observability.NewRegistry()
	services := app.NewServices(cfg, pool, redisClient, nil, logger)
	handlers := jobs.New(
		services.Inventory,
		services.Counts,
		services.Idempotency,
		services.Reports,
		logger,
		jobmetrics.NewMetrics(registry),
	)

	schedule, err := cronSchedule(cfg)
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().Asynq(),
		Logger:    logger,
		Handlers:  handlers.Handlers(),
		Cron:      schedule,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	if cfg.WorkerMetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.WorkerMetricsAddr, observability.HandlerFor(registry), logger)
		})
	}
	return g.Wait()
}

func cronSchedule(cfg *app.Config) ([]jobs.CronRegistration, error) {
	orphanTask, err := jobs.NewOrphanSweepTask(cfg.OrphanCountMinAge)
	if err != nil {
		return nil, fmt.Errorf("build orphan sweep task: %w", err)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyMaxAge)
	if err != nil {
		return nil, fmt.Errorf("build idempotency cleanup task: %w", err)
	}
	weeklyTask, err := jobs.NewWeeklyReportTask(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("build weekly report task: %w", err)
	}
	return []jobs.CronRegistration{
		{Spec: cfg.LowStockScanCron, Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.OrphanSweepCron, Task: orphanTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		{Spec: cfg.WeeklyReportCron, Task: weeklyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}, nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("serving worker metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
