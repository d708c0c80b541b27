package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLevels(ctx context.Context, filter LevelFilter) ([]Level, error)
	WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error)
}

// Catalog resolves items and locations.
type Catalog interface {
	Warehouse(ctx context.Context) (masterdata.Location, error)
	Location(ctx context.Context, id uuid.UUID) (masterdata.Location, error)
	Item(ctx context.Context, id uuid.UUID) (masterdata.Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed postings.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// EntryMode governs quantities typed on receive, delivery and adjustment screens.
	EntryMode units.EntryMode
	// HistoryLimit caps ledger listings.
	HistoryLimit int
}

// Service coordinates ledger postings and level queries.
type Service struct {
	repo        RepositoryPort
	catalog     Catalog
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *LevelCache
	listeners   []PostingListener
	cfg         ServiceConfig
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog Catalog, audit AuditPort, idem IdempotencyPort, cache *LevelCache, cfg ServiceConfig, logger *slog.Logger, listeners ...PostingListener) *Service {
	if cfg.EntryMode == "" {
		cfg.EntryMode = units.EntryFractional
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cache != nil {
		listeners = append(listeners, cache)
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, idempotency: idem, cache: cache, listeners: listeners, cfg: cfg, logger: logger}
}

// RecordReceive posts stock arriving at a location (the warehouse when unset).
func (s *Service) RecordReceive(ctx context.Context, actor shared.Actor, input ReceiveInput) (Posting, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return Posting{}, err
	}
	dest, err := s.destination(ctx, input.ToLocationID)
	if err != nil {
		return Posting{}, err
	}
	lines, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return Posting{}, err
	}
	txs := make([]Transaction, 0, len(lines))
	for _, l := range lines {
		txs = append(txs, Transaction{
			Type:         TransactionReceive,
			CreatedBy:    actor.ID,
			ItemID:       l.item.ID,
			ToLocationID: &dest.ID,
			Qty:          l.pieces,
			Note:         strings.TrimSpace(input.Note),
		})
	}
	return s.post(ctx, actor, TransactionReceive, input.RequestKey, txs)
}

// RecordDelivery posts a transfer from the warehouse to a branch.
func (s *Service) RecordDelivery(ctx context.Context, actor shared.Actor, input DeliveryInput) (Posting, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return Posting{}, err
	}
	warehouse, err := s.catalog.Warehouse(ctx)
	if err != nil {
		return Posting{}, err
	}
	branch, err := s.catalog.Location(ctx, input.ToLocationID)
	if err != nil {
		return Posting{}, err
	}
	if !branch.IsBranch() {
		return Posting{}, masterdata.ErrNotBranch.Withf("Deliveries go to a branch; %s is not one", branch.Name)
	}
	lines, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return Posting{}, err
	}
	txs := make([]Transaction, 0, len(lines))
	for _, l := range lines {
		txs = append(txs, Transaction{
			Type:           TransactionTransfer,
			CreatedBy:      actor.ID,
			ItemID:         l.item.ID,
			FromLocationID: &warehouse.ID,
			ToLocationID:   &branch.ID,
			Qty:            l.pieces,
			Note:           strings.TrimSpace(input.Note),
		})
	}
	return s.post(ctx, actor, TransactionTransfer, input.RequestKey, txs)
}

// RecordAdjustment posts a manual correction at one location.
func (s *Service) RecordAdjustment(ctx context.Context, actor shared.Actor, input AdjustmentInput) (Posting, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return Posting{}, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return Posting{}, ErrReasonRequired
	}
	if input.Direction != DirectionAdd && input.Direction != DirectionRemove {
		return Posting{}, ErrInvalidDirection
	}
	loc, err := s.catalog.Location(ctx, input.LocationID)
	if err != nil {
		return Posting{}, err
	}
	lines, err := s.resolveLines(ctx, []Line{input.Line})
	if err != nil {
		return Posting{}, err
	}
	tx := Transaction{
		Type:      TransactionAdjust,
		CreatedBy: actor.ID,
		ItemID:    lines[0].item.ID,
		Qty:       lines[0].pieces,
		Reason:    reason,
		Note:      strings.TrimSpace(input.Note),
	}
	if input.Direction == DirectionAdd {
		tx.ToLocationID = &loc.ID
	} else {
		tx.FromLocationID = &loc.ID
	}
	return s.post(ctx, actor, TransactionAdjust, input.RequestKey, []Transaction{tx})
}

// Levels lists on-hand rows ordered by category then item name.
func (s *Service) Levels(ctx context.Context, filter LevelFilter) ([]Level, error) {
	key, err := s.cache.BuildKey(ctx, levelFilterKey(filter)...)
	if err != nil {
		s.logger.Warn("level cache key", slog.Any("error", err))
		return s.loadLevels(ctx, filter)
	}
	var rows []Level
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		return s.loadLevels(ctx, filter)
	})
	var domain *shared.Error
	if errors.As(err, &domain) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("level cache unavailable", slog.Any("error", err))
		return s.loadLevels(ctx, filter)
	}
	return rows, nil
}

func (s *Service) loadLevels(ctx context.Context, filter LevelFilter) ([]Level, error) {
	if filter.LocationType == masterdata.LocationWarehouse && filter.LocationID == uuid.Nil {
		wh, err := s.catalog.Warehouse(ctx)
		if err != nil {
			return nil, err
		}
		filter.LocationID = wh.ID
	}
	rows, err := s.repo.ListLevels(ctx, filter)
	if err != nil {
		return nil, shared.Dependency(err)
	}
	out := make([]Level, 0, len(rows))
	for _, row := range rows {
		row = row.decorate()
		if filter.LowOnly && !row.IsLow() {
			continue
		}
		out = append(out, row)
	}
	SortLevels(out)
	return out, nil
}

// LowStock lists warehouse rows at or below their reorder point, lowest first.
func (s *Service) LowStock(ctx context.Context) ([]Level, error) {
	rows, err := s.Levels(ctx, LevelFilter{LocationType: masterdata.LocationWarehouse, LowOnly: true})
	if err != nil {
		return nil, err
	}
	SortByOnHand(rows)
	return rows, nil
}

// WarehouseOnHand returns the warehouse quantity of an item, the allocation ceiling.
func (s *Service) WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	if _, err := s.catalog.Warehouse(ctx); err != nil {
		return decimal.Zero, err
	}
	qty, err := s.repo.WarehouseOnHand(ctx, itemID)
	if err != nil {
		return decimal.Zero, shared.Dependency(err)
	}
	return qty, nil
}

// History lists ledger entries newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	if filter.Limit <= 0 || filter.Limit > s.cfg.HistoryLimit {
		filter.Limit = s.cfg.HistoryLimit
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Validation("end date is before start date")
	}
	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return txs, nil
}

// OnHandAsOf folds the ledger of one location up to asOf.
func (s *Service) OnHandAsOf(ctx context.Context, locationID uuid.UUID, asOf time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	txs, err := s.repo.ListTransactions(ctx, HistoryFilter{LocationID: locationID, To: asOf})
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return Fold(txs).ForLocation(locationID), nil
}

type resolvedLine struct {
	item   masterdata.Item
	pieces decimal.Decimal
}

func (s *Service) resolveLines(ctx context.Context, lines []Line) ([]resolvedLine, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	out := make([]resolvedLine, 0, len(lines))
	for _, l := range lines {
		if !l.Qty.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		if err := s.cfg.EntryMode.Validate(l.Qty); err != nil {
			return nil, err
		}
		item, err := s.catalog.Item(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		if !item.IsActive {
			return nil, shared.Validation("%s is no longer active", item.Name)
		}
		unit := l.Unit
		if unit == "" {
			unit = item.BaseUnit
		}
		out = append(out, resolvedLine{item: item, pieces: item.ToPieces(l.Qty, unit)})
	}
	return out, nil
}

func (s *Service) destination(ctx context.Context, id uuid.UUID) (masterdata.Location, error) {
	if id == uuid.Nil {
		return s.catalog.Warehouse(ctx)
	}
	loc, err := s.catalog.Location(ctx, id)
	if err != nil {
		return masterdata.Location{}, err
	}
	if !loc.IsActive {
		return masterdata.Location{}, masterdata.ErrInactiveLocation.Withf("%s is not active", loc.Name)
	}
	return loc, nil
}

func (s *Service) post(ctx context.Context, actor shared.Actor, kind TransactionType, requestKey string, txs []Transaction) (Posting, error) {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return Posting{}, err
		}
	}
	key := strings.TrimSpace(requestKey)
	insertedKey := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, fmt.Sprintf("%s:%s", kind, key), "inventory"); err != nil {
			return Posting{}, err
		}
		insertedKey = true
	}

	var stored []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stored, err = tx.InsertTransactions(ctx, txs)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, fmt.Sprintf("%s:%s", kind, key))
		}
		s.logger.Error("ledger posting failed", slog.String("type", string(kind)), slog.Any("error", err))
		return Posting{}, shared.Dependency(err)
	}

	itemIDs := make([]uuid.UUID, 0, len(stored))
	for _, t := range stored {
		itemIDs = append(itemIDs, t.ItemID)
	}
	evt := PostedEvent{Type: kind, ActorID: actor.ID, ItemIDs: itemIDs, PostedAt: time.Now().UTC(), TxCount: len(stored), RequestID: key}
	for _, l := range s.listeners {
		if err := l.HandlePosted(ctx, evt); err != nil {
			s.logger.Warn("posting listener failed", slog.String("type", string(kind)), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		meta := map[string]any{"count": len(stored)}
		if len(stored) > 0 {
			meta["first_id"] = stored[0].ID.String()
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "inventory:" + strings.ToLower(string(kind)),
			Entity:   "transactions",
			EntityID: auditEntityID(stored),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Any("error", err))
		}
	}
	return Posting{Type: kind, Transactions: stored}, nil
}

func auditEntityID(txs []Transaction) string {
	if len(txs) == 0 {
		return "none"
	}
	return txs[0].ID.String()
}

func levelFilterKey(f LevelFilter) []string {
	return []string{
		string(f.LocationType),
		f.LocationID.String(),
		f.ItemID.String(),
		strings.ToLower(f.Category),
		strings.ToLower(strings.TrimSpace(f.Search)),
		fmt.Sprintf("low=%t", f.LowOnly),
	}
}
