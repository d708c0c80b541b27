package counts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LatestCount(ctx context.Context, locationID uuid.UUID, weekOf time.Time) (StockCount, error)
	GetCount(ctx context.Context, id uuid.UUID) (StockCount, error)
	CountsForWeeks(ctx context.Context, weeks []time.Time) ([]StockCount, error)
	TransfersInto(ctx context.Context, branchIDs []uuid.UUID, from, to time.Time) ([]inventory.Transaction, error)
	FindOrphans(ctx context.Context, createdBefore time.Time) ([]StockCount, error)
}

// Catalog resolves branches and the active item list.
type Catalog interface {
	Branch(ctx context.Context, id uuid.UUID) (masterdata.Location, error)
	ListBranches(ctx context.Context, activeOnly bool) ([]masterdata.Location, error)
	Items(ctx context.Context, filter masterdata.ItemFilter) ([]masterdata.Item, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes count behaviour.
type Config struct {
	EditWindow time.Duration
	EntryMode  units.EntryMode
	Clock      func() time.Time
}

// Service reconciles branch stock counts.
type Service struct {
	repo    RepositoryPort
	catalog Catalog
	audit   AuditPort
	cfg     Config
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog Catalog, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = 12 * time.Hour
	}
	if cfg.EntryMode == "" {
		cfg.EntryMode = units.EntryWhole
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, cfg: cfg, logger: logger}
}

// CurrentWeek is the week a count submitted now belongs to.
func (s *Service) CurrentWeek() time.Time {
	return shared.CurrentWeek(s.cfg.Clock())
}

// GetExistingCount returns the newest count for the branch and week, or nil.
func (s *Service) GetExistingCount(ctx context.Context, actor shared.Actor, locationID uuid.UUID, weekOf time.Time) (*ExistingCount, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	if err := shared.ValidateWeekOf(weekOf); err != nil {
		return nil, err
	}
	count, err := s.repo.LatestCount(ctx, locationID, weekOf)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, shared.Dependency(err)
	}
	items, err := s.itemIndex(ctx)
	if err != nil {
		return nil, err
	}
	deadline := count.CreatedAt.Add(s.cfg.EditWindow)
	existing := &ExistingCount{
		Count:        count,
		Editable:     !s.cfg.Clock().After(deadline),
		OwnedByActor: count.SubmittedBy == actor.ID,
		EditDeadline: deadline,
	}
	for _, row := range count.Items {
		item, ok := items[row.ItemID]
		if !ok {
			existing.Lines = append(existing.Lines, EntryLine{ItemID: row.ItemID, Boxes: row.Qty})
			continue
		}
		existing.Lines = append(existing.Lines, FromPieces(item, row.Qty))
	}
	return existing, nil
}

// SubmitCount records a new count with one row per active item.
func (s *Service) SubmitCount(ctx context.Context, actor shared.Actor, input SubmitInput) (StockCount, error) {
	if err := actor.Require(); err != nil {
		return StockCount{}, err
	}
	countedBy := strings.TrimSpace(input.CountedBy)
	if countedBy == "" {
		return StockCount{}, ErrCountedByRequired
	}
	if err := shared.ValidateWeekOf(input.WeekOf); err != nil {
		return StockCount{}, err
	}
	branch, err := s.catalog.Branch(ctx, input.LocationID)
	if err != nil {
		return StockCount{}, err
	}
	rows, err := s.buildRows(ctx, input.Lines)
	if err != nil {
		return StockCount{}, err
	}

	var stored StockCount
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.CountExists(ctx, branch.ID, input.WeekOf)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateCount
		}
		stored, err = tx.InsertCount(ctx, StockCount{
			LocationID:  branch.ID,
			CountedBy:   countedBy,
			SubmittedBy: actor.ID,
			WeekOf:      input.WeekOf,
		})
		if err != nil {
			return err
		}
		stored.Items, err = tx.InsertItems(ctx, stored.ID, rows)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCount) {
			return StockCount{}, ErrDuplicateCount.Withf("%s already has a count for the week of %s", branch.Name, input.WeekOf.Format(shared.DateLayout))
		}
		s.logger.Error("submit count failed", slog.String("location_id", branch.ID.String()), slog.Any("error", err))
		return StockCount{}, shared.Dependency(err)
	}
	s.record(ctx, actor, "counts:submit", stored.ID, map[string]any{"week_of": input.WeekOf.Format(shared.DateLayout), "items": len(rows)})
	return stored, nil
}

// UpdateExistingCount replaces every row of a count within the edit window.
func (s *Service) UpdateExistingCount(ctx context.Context, actor shared.Actor, input UpdateInput) (StockCount, error) {
	if err := actor.Require(); err != nil {
		return StockCount{}, err
	}
	count, err := s.repo.GetCount(ctx, input.CountID)
	if err != nil {
		return StockCount{}, wrapLookup(err)
	}
	if count.SubmittedBy != actor.ID {
		return StockCount{}, ErrNotOwner
	}
	if s.cfg.Clock().Sub(count.CreatedAt) > s.cfg.EditWindow {
		return StockCount{}, ErrEditWindowExpired.Withf("Counts can only be edited for %s after submission", formatWindow(s.cfg.EditWindow))
	}
	rows, err := s.buildRows(ctx, input.Lines)
	if err != nil {
		return StockCount{}, err
	}
	countedBy := strings.TrimSpace(input.CountedBy)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteItems(ctx, count.ID); err != nil {
			return err
		}
		if countedBy != "" && countedBy != count.CountedBy {
			if err := tx.UpdateCountedBy(ctx, count.ID, countedBy); err != nil {
				return err
			}
			count.CountedBy = countedBy
		}
		var err error
		count.Items, err = tx.InsertItems(ctx, count.ID, rows)
		return err
	})
	if err != nil {
		s.logger.Error("update count failed", slog.String("count_id", count.ID.String()), slog.Any("error", err))
		return StockCount{}, shared.Dependency(err)
	}
	s.record(ctx, actor, "counts:update", count.ID, map[string]any{"items": len(rows)})
	return count, nil
}

// DeleteCount removes a count regardless of the edit window.
func (s *Service) DeleteCount(ctx context.Context, actor shared.Actor, countID uuid.UUID) error {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteCount(ctx, countID)
	})
	if err != nil {
		return wrapLookup(err)
	}
	s.record(ctx, actor, "counts:delete", countID, nil)
	return nil
}

// CorrectCountItem overwrites a single counted quantity, in pieces.
func (s *Service) CorrectCountItem(ctx context.Context, actor shared.Actor, itemRowID uuid.UUID, qty decimal.Decimal) error {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return err
	}
	if qty.IsNegative() {
		return shared.Validation("quantity cannot be negative")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateItemQty(ctx, itemRowID, qty)
	})
	if err != nil {
		return wrapLookup(err)
	}
	s.record(ctx, actor, "counts:correct", itemRowID, map[string]any{"qty": qty.String()})
	return nil
}

// Comparison builds the three-week branch view as of asOf.
func (s *Service) Comparison(ctx context.Context, actor shared.Actor, asOf time.Time) (ComparisonView, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return ComparisonView{}, err
	}
	weeks := ComparisonWeeks(asOf)
	view := ComparisonView{Weeks: weeks}

	var (
		branches []masterdata.Location
		counts   []StockCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		branches, err = s.catalog.ListBranches(gctx, true)
		return err
	})
	g.Go(func() error {
		var err error
		view.Items, err = s.catalog.Items(gctx, masterdata.ItemFilter{ActiveOnly: true})
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.repo.CountsForWeeks(gctx, weeks)
		return err
	})
	if err := g.Wait(); err != nil {
		return ComparisonView{}, shared.Dependency(err)
	}

	branchIDs := make([]uuid.UUID, 0, len(branches))
	for _, b := range branches {
		branchIDs = append(branchIDs, b.ID)
	}
	var transfers []inventory.Transaction
	if len(branchIDs) > 0 {
		var err error
		transfers, err = s.repo.TransfersInto(ctx, branchIDs, weeks[0], weeks[2].AddDate(0, 0, 7))
		if err != nil {
			return ComparisonView{}, shared.Dependency(err)
		}
	}

	latest := latestPerBranchWeek(counts)
	deliveries := bucketDeliveries(transfers, weeks)
	for _, b := range branches {
		row := BranchComparison{BranchID: b.ID, BranchName: b.Name}
		for _, week := range weeks {
			snap := WeekSnapshot{WeekOf: week}
			if c, ok := latest[branchWeek{b.ID, week.Format(shared.DateLayout)}]; ok {
				snap.Count = &CountSummary{ID: c.ID, CountedBy: c.CountedBy, CreatedAt: c.CreatedAt}
				snap.Counted = c.QtyByItem()
				snap.CountRows = make(map[uuid.UUID]uuid.UUID, len(c.Items))
				for _, it := range c.Items {
					snap.CountRows[it.ItemID] = it.ID
				}
			}
			if d, ok := deliveries[branchWeek{b.ID, week.Format(shared.DateLayout)}]; ok {
				snap.Delivered = d.qty
				first := d.first
				snap.FirstDeliveryAt = &first
			}
			row.Weeks = append(row.Weeks, snap)
		}
		view.Branches = append(view.Branches, row)
	}
	return view, nil
}

// FindOrphans lists count headers older than olderThan that have no rows.
func (s *Service) FindOrphans(ctx context.Context, olderThan time.Duration) ([]StockCount, error) {
	counts, err := s.repo.FindOrphans(ctx, s.cfg.Clock().Add(-olderThan))
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return counts, nil
}

type branchWeek struct {
	branch uuid.UUID
	week   string
}

type deliveryBucket struct {
	qty   map[uuid.UUID]decimal.Decimal
	first time.Time
}

// latestPerBranchWeek keeps the newest count per branch and week.
func latestPerBranchWeek(counts []StockCount) map[branchWeek]StockCount {
	out := make(map[branchWeek]StockCount)
	for _, c := range counts {
		key := branchWeek{c.LocationID, c.WeekOf.Format(shared.DateLayout)}
		if prev, ok := out[key]; ok && !c.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		out[key] = c
	}
	return out
}

// bucketDeliveries assigns each transfer to the latest week start at or before it.
func bucketDeliveries(txs []inventory.Transaction, weeks []time.Time) map[branchWeek]*deliveryBucket {
	out := make(map[branchWeek]*deliveryBucket)
	for _, t := range txs {
		if t.ToLocationID == nil {
			continue
		}
		week := weeks[0]
		for i := len(weeks) - 1; i >= 0; i-- {
			if !t.CreatedAt.Before(weeks[i]) {
				week = weeks[i]
				break
			}
		}
		key := branchWeek{*t.ToLocationID, week.Format(shared.DateLayout)}
		b, ok := out[key]
		if !ok {
			b = &deliveryBucket{qty: make(map[uuid.UUID]decimal.Decimal), first: t.CreatedAt}
			out[key] = b
		}
		b.qty[t.ItemID] = b.qty[t.ItemID].Add(t.Qty)
		if t.CreatedAt.Before(b.first) {
			b.first = t.CreatedAt
		}
	}
	return out
}

func (s *Service) buildRows(ctx context.Context, lines []EntryLine) ([]StockCountItem, error) {
	items, err := s.catalog.Items(ctx, masterdata.ItemFilter{ActiveOnly: true})
	if err != nil {
		return nil, shared.Dependency(err)
	}
	entered := make(map[uuid.UUID]EntryLine, len(lines))
	known := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		known[it.ID] = struct{}{}
	}
	for _, l := range lines {
		if _, ok := known[l.ItemID]; !ok {
			return nil, ErrUnknownItem
		}
		if err := s.cfg.EntryMode.Validate(l.Boxes); err != nil {
			return nil, err
		}
		if err := s.cfg.EntryMode.Validate(l.Loose); err != nil {
			return nil, err
		}
		entered[l.ItemID] = l
	}
	rows := make([]StockCountItem, 0, len(items))
	for _, it := range items {
		qty := decimal.Zero
		if l, ok := entered[it.ID]; ok {
			qty = ToPieces(it, l)
		}
		rows = append(rows, StockCountItem{ItemID: it.ID, Qty: qty})
	}
	return rows, nil
}

func (s *Service) itemIndex(ctx context.Context) (map[uuid.UUID]masterdata.Item, error) {
	items, err := s.catalog.Items(ctx, masterdata.ItemFilter{})
	if err != nil {
		return nil, shared.Dependency(err)
	}
	out := make(map[uuid.UUID]masterdata.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "stock_counts",
		EntityID: id.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func wrapLookup(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return ErrCountNotFound
	}
	return shared.Dependency(err)
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	}
	return d.String()
}
