package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tutti-stock/tutti-stock/internal/counts"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	jobmetrics "github.com/tutti-stock/tutti-stock/internal/jobs"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/report"
)

// ErrUnknownTask is returned when a task name is not handled by the worker.
var ErrUnknownTask = errors.New("jobs: unknown task")

// LowStockSource lists warehouse rows at or below reorder point.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]inventory.Level, error)
}

// OrphanSource finds stock count headers without items.
type OrphanSource interface {
	FindOrphans(ctx context.Context, olderThan time.Duration) ([]counts.StockCount, error)
}

// KeyCleaner purges idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// WeeklyBuilder builds the weekly delivery summary.
type WeeklyBuilder interface {
	Weekly(ctx context.Context, from, to time.Time) (report.Weekly, error)
}

// Defaults applied when a payload leaves a field empty.
const (
	DefaultOrphanMinAge      = time.Hour
	DefaultIdempotencyMaxAge = 7 * 24 * time.Hour
)

// Jobs holds the handlers of every scheduled task.
type Jobs struct {
	Stock   LowStockSource
	Counts  OrphanSource
	Keys    KeyCleaner
	Reports WeeklyBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// New constructs the job handlers.
func New(stock LowStockSource, countsSrc OrphanSource, keys KeyCleaner, reports WeeklyBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		Stock:   stock,
		Counts:  countsSrc,
		Keys:    keys,
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handlers returns the asynq registrations for every task.
func (j *Jobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskLowStockScan, Handler: j.HandleLowStockScan},
		{Type: TaskOrphanSweep, Handler: j.HandleOrphanSweep},
		{Type: TaskIdempotencyCleanup, Handler: j.HandleIdempotencyCleanup},
		{Type: TaskWeeklyReport, Handler: j.HandleWeeklyReport},
	}
}

// HandleLowStockScan sets the low-stock gauge and logs each low row.
func (j *Jobs) HandleLowStockScan(ctx context.Context, _ *asynq.Task) error {
	tracker := j.Metrics.Track(TaskLowStockScan)
	if j.Stock == nil {
		return tracker.End(errors.New("low stock scan: stock source not configured"))
	}
	rows, err := j.Stock.LowStock(ctx)
	if err != nil {
		j.Logger.Error("low stock scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, row := range rows {
		j.Logger.Warn("item at or below reorder point",
			slog.String("item_id", row.ItemID.String()),
			slog.String("item", row.ItemName),
			slog.String("on_hand", row.Display),
			slog.String("severity", string(row.Severity)),
		)
	}
	j.Metrics.SetLowStock(len(rows))
	j.Logger.Info("low stock scan completed", slog.Int("low_items", len(rows)))
	return tracker.End(nil)
}

// HandleOrphanSweep logs count headers that were saved without rows. It never deletes.
func (j *Jobs) HandleOrphanSweep(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskOrphanSweep)
	var payload OrphanSweepPayload
	if err := decode(t, &payload); err != nil {
		return tracker.End(err)
	}
	if payload.MinAge <= 0 {
		payload.MinAge = DefaultOrphanMinAge
	}
	if j.Counts == nil {
		return tracker.End(errors.New("orphan sweep: counts source not configured"))
	}
	orphans, err := j.Counts.FindOrphans(ctx, payload.MinAge)
	if err != nil {
		j.Logger.Error("orphan sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, c := range orphans {
		j.Logger.Warn("stock count has no items",
			slog.String("count_id", c.ID.String()),
			slog.String("location_id", c.LocationID.String()),
			slog.String("week_of", c.WeekOf.Format(shared.DateLayout)),
		)
	}
	j.Metrics.AddOrphanCounts(len(orphans))
	j.Logger.Info("orphan sweep completed", slog.Int("orphans", len(orphans)))
	return tracker.End(nil)
}

// HandleIdempotencyCleanup removes request keys older than the retention.
func (j *Jobs) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	var payload IdempotencyCleanupPayload
	if err := decode(t, &payload); err != nil {
		return tracker.End(err)
	}
	if payload.MaxAge <= 0 {
		payload.MaxAge = DefaultIdempotencyMaxAge
	}
	if j.Keys == nil {
		return tracker.End(errors.New("idempotency cleanup: store not configured"))
	}
	n, err := j.Keys.Cleanup(ctx, payload.MaxAge)
	if err != nil {
		j.Logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddPurgedKeys(n)
	j.Logger.Info("idempotency cleanup completed", slog.Int64("removed", n), slog.Duration("max_age", payload.MaxAge))
	return tracker.End(nil)
}

// HandleWeeklyReport builds the summary for a week and logs its totals.
func (j *Jobs) HandleWeeklyReport(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskWeeklyReport)
	var payload WeeklyReportPayload
	if err := decode(t, &payload); err != nil {
		return tracker.End(err)
	}
	from := payload.WeekOf
	if from.IsZero() {
		from = shared.CurrentWeek(j.clock()).AddDate(0, 0, -7)
	}
	if j.Reports == nil {
		return tracker.End(errors.New("weekly report: builder not configured"))
	}
	out, err := j.Reports.Weekly(ctx, from, from.AddDate(0, 0, 7))
	if err != nil {
		if shared.KindOf(err) == shared.KindValidation {
			return tracker.End(errors.Join(err, asynq.SkipRetry))
		}
		j.Logger.Error("weekly report failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger := j.Logger.With(slog.String("week_of", from.Format(shared.DateLayout)))
	for _, b := range out.TransfersByBranch {
		logger.Info("weekly deliveries",
			slog.String("branch", b.LocationName),
			slog.Int("lines", b.Lines),
			slog.String("pieces", b.Pieces.String()),
		)
	}
	logger.Info("weekly report completed",
		slog.Int("branches", len(out.TransfersByBranch)),
		slog.Int("top_items", len(out.TopItems)),
		slog.Int("low_stock", len(out.LowStock)),
	)
	return tracker.End(nil)
}
