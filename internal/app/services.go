package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tutti-stock/tutti-stock/internal/audit"
	"github.com/tutti-stock/tutti-stock/internal/counts"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/observability"
	"github.com/tutti-stock/tutti-stock/internal/planner"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/report"
)

// Services holds the domain services shared by the API, worker and CLI processes.
type Services struct {
	Audit       *shared.AuditLogger
	Timeline    *audit.Service
	Idempotency *shared.IdempotencyStore
	RBAC        *rbac.Service
	MasterData  *masterdata.Service
	LedgerRepo  *inventory.Repository
	Inventory   *inventory.Service
	Counts      *counts.Service
	Planner     *planner.Service
	Reports     *report.Builder
}

// NewServices wires repositories and services. redisClient may be nil, which
// disables the level cache; metrics may be nil outside the API process.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	auditLogger := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)

	levelCache := inventory.NewLevelCache(redisClient, cfg.InventoryCacheTTL)
	catalog := masterdata.NewService(masterdata.NewRepository(pool), auditLogger, logger, levelCache)

	var listeners []inventory.PostingListener
	var plannerMetrics planner.Metrics
	if metrics != nil {
		listeners = append(listeners, metrics)
		plannerMetrics = metrics
	}
	ledgerRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(
		ledgerRepo,
		catalog,
		auditLogger,
		idem,
		levelCache,
		inventory.ServiceConfig{EntryMode: cfg.ManagerMode()},
		logger,
		listeners...,
	)

	countsService := counts.NewService(counts.NewRepository(pool), catalog, auditLogger, counts.Config{
		EditWindow: cfg.CountEditWindow,
		EntryMode:  cfg.CountMode(),
	}, logger)

	plannerService := planner.NewService(planner.NewRepository(pool), catalog, inventoryService, auditLogger, plannerMetrics, planner.Config{
		EnforceCeilingOnUpdate: cfg.PlannerUpdateCeiling,
		EntryMode:              cfg.ManagerMode(),
	}, logger)

	return &Services{
		Audit:       auditLogger,
		Timeline:    audit.NewService(audit.NewRepository(pool)),
		Idempotency: idem,
		RBAC:        rbac.NewService(rbac.NewPGProfileStore(pool)),
		MasterData:  catalog,
		LedgerRepo:  ledgerRepo,
		Inventory:   inventoryService,
		Counts:      countsService,
		Planner:     plannerService,
		Reports:     report.NewBuilder(ledgerRepo, inventoryService, catalog, cfg.ReportTopItems),
	}
}
