package planner

import (
	"context"
	"errors"
	"log/slog"
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
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
	ListItems(ctx context.Context, planID uuid.UUID) ([]PlanItem, error)
	DraftForWeek(ctx context.Context, weekOf time.Time) (Plan, error)
	LatestFinalized(ctx context.Context) (Plan, error)
}

// Catalog resolves branches and items.
type Catalog interface {
	Branch(ctx context.Context, id uuid.UUID) (masterdata.Location, error)
	Item(ctx context.Context, id uuid.UUID) (masterdata.Item, error)
}

// StockReader supplies the warehouse on-hand ceiling outside write transactions.
type StockReader interface {
	WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics records allocator rejections.
type Metrics interface {
	AllocationRejected(reason string)
}

// Config tunes the allocator.
type Config struct {
	// EnforceCeilingOnUpdate applies the warehouse ceiling to quantity edits as well as adds.
	EnforceCeilingOnUpdate bool
	// EntryMode governs quantities typed on the planner.
	EntryMode units.EntryMode
}

// Service is the delivery plan allocator.
type Service struct {
	repo    RepositoryPort
	catalog Catalog
	stock   StockReader
	audit   AuditPort
	metrics Metrics
	cfg     Config
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog Catalog, stock StockReader, audit AuditPort, metrics Metrics, cfg Config, logger *slog.Logger) *Service {
	if cfg.EntryMode == "" {
		cfg.EntryMode = units.EntryFractional
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, stock: stock, audit: audit, metrics: metrics, cfg: cfg, logger: logger}
}

// GetOrCreateDraftPlan returns the week's draft, creating it on first access.
func (s *Service) GetOrCreateDraftPlan(ctx context.Context, actor shared.Actor, weekOf time.Time) (PlanWithItems, error) {
	if err := actor.Require(); err != nil {
		return PlanWithItems{}, err
	}
	if err := shared.ValidateWeekOf(weekOf); err != nil {
		return PlanWithItems{}, err
	}
	plan, err := s.repo.DraftForWeek(ctx, weekOf)
	switch {
	case err == nil:
		return s.withItems(ctx, plan)
	case !errors.Is(err, ErrRecordNotFound):
		return PlanWithItems{}, shared.Dependency(err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		plan, err = tx.InsertDraft(ctx, Plan{WeekOf: weekOf, Status: StatusDraft, CreatedBy: actor.ID})
		return err
	})
	if errors.Is(err, ErrDraftExists) {
		// Lost the race to a concurrent creator; its draft is the week's draft.
		plan, err = s.repo.DraftForWeek(ctx, weekOf)
		if err != nil {
			return PlanWithItems{}, shared.Dependency(err)
		}
		return s.withItems(ctx, plan)
	}
	if err != nil {
		return PlanWithItems{}, shared.Dependency(err)
	}
	s.logger.Info("draft plan created", slog.String("plan_id", plan.ID.String()), slog.String("week_of", weekOf.Format(shared.DateLayout)))
	s.record(ctx, actor, "planner:create", plan.ID, map[string]any{"week_of": weekOf.Format(shared.DateLayout)})
	return PlanWithItems{Plan: plan, Items: []PlanItem{}}, nil
}

// GetPlan returns a plan with its lines.
func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (PlanWithItems, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return PlanWithItems{}, lookup(err, ErrPlanNotFound)
	}
	return s.withItems(ctx, plan)
}

// AddPlanItem adds or replaces the line for an item and branch, keeping the
// plan's total for the item within warehouse on-hand.
func (s *Service) AddPlanItem(ctx context.Context, actor shared.Actor, input AddItemInput) (PlanItem, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return PlanItem{}, err
	}
	if !input.Qty.IsPositive() {
		return PlanItem{}, s.reject(ErrInvalidQuantity)
	}
	if err := s.cfg.EntryMode.Validate(input.Qty); err != nil {
		return PlanItem{}, err
	}
	branch, err := s.catalog.Branch(ctx, input.ToLocationID)
	if err != nil {
		return PlanItem{}, err
	}
	item, err := s.catalog.Item(ctx, input.ItemID)
	if err != nil {
		return PlanItem{}, err
	}
	if !item.IsActive {
		return PlanItem{}, shared.Validation("%s is no longer active", item.Name)
	}
	unit := input.Unit
	if unit == "" {
		unit = units.Pieces
	}
	qty := item.ToPieces(input.Qty, unit)

	var stored PlanItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockItem(ctx, input.PlanID, item.ID); err != nil {
			return err
		}
		plan, err := tx.GetPlanForShare(ctx, input.PlanID)
		if err != nil {
			return lookup(err, ErrPlanNotFound)
		}
		if plan.Status != StatusDraft {
			return ErrPlanFinalized
		}
		if err := s.checkCeiling(ctx, tx, item, input.PlanID, branch.ID, qty); err != nil {
			return err
		}
		stored, err = tx.UpsertItem(ctx, PlanItem{PlanID: plan.ID, ItemID: item.ID, ToLocationID: branch.ID, Qty: qty})
		return err
	})
	if err != nil {
		return PlanItem{}, s.fail("add plan item", err)
	}
	s.record(ctx, actor, "planner:add_item", stored.ID, map[string]any{"plan_id": stored.PlanID.String(), "qty": qty.String()})
	return stored, nil
}

// RemovePlanItem deletes a line from a draft plan.
func (s *Service) RemovePlanItem(ctx context.Context, actor shared.Actor, planItemID uuid.UUID) error {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetPlanItem(ctx, planItemID)
		if err != nil {
			return lookup(err, ErrPlanItemNotFound)
		}
		plan, err := tx.GetPlanForShare(ctx, line.PlanID)
		if err != nil {
			return lookup(err, ErrPlanNotFound)
		}
		if plan.Status != StatusDraft {
			return ErrPlanFinalized
		}
		return tx.DeleteItem(ctx, planItemID)
	})
	if err != nil {
		return s.fail("remove plan item", err)
	}
	s.record(ctx, actor, "planner:remove_item", planItemID, nil)
	return nil
}

// UpdatePlanItem changes the quantity, in pieces, of an existing line.
func (s *Service) UpdatePlanItem(ctx context.Context, actor shared.Actor, planItemID uuid.UUID, qty decimal.Decimal) (PlanItem, error) {
	if !qty.IsPositive() {
		return PlanItem{}, s.reject(ErrInvalidQuantity)
	}
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return PlanItem{}, err
	}
	var stored PlanItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetPlanItem(ctx, planItemID)
		if err != nil {
			return lookup(err, ErrPlanItemNotFound)
		}
		if s.cfg.EnforceCeilingOnUpdate {
			if err := tx.LockItem(ctx, line.PlanID, line.ItemID); err != nil {
				return err
			}
		}
		plan, err := tx.GetPlanForShare(ctx, line.PlanID)
		if err != nil {
			return lookup(err, ErrPlanNotFound)
		}
		if plan.Status != StatusDraft {
			return ErrPlanFinalized
		}
		if s.cfg.EnforceCeilingOnUpdate {
			item, err := s.catalog.Item(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if err := s.checkCeiling(ctx, tx, item, line.PlanID, line.ToLocationID, qty); err != nil {
				return err
			}
		}
		stored, err = tx.UpdateItemQty(ctx, planItemID, qty)
		return err
	})
	if err != nil {
		return PlanItem{}, s.fail("update plan item", err)
	}
	s.record(ctx, actor, "planner:update_item", planItemID, map[string]any{"qty": qty.String()})
	return stored, nil
}

// FinalizePlan moves a non-empty draft to finalized.
func (s *Service) FinalizePlan(ctx context.Context, actor shared.Actor, planID uuid.UUID) error {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return lookup(err, ErrPlanNotFound)
		}
		n, err := tx.CountItems(ctx, planID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEmptyPlan
		}
		if plan.Status != StatusDraft {
			return ErrAlreadyFinalized
		}
		return tx.SetStatus(ctx, planID, StatusFinalized)
	})
	if err != nil {
		return s.fail("finalize plan", err)
	}
	s.logger.Info("plan finalized", slog.String("plan_id", planID.String()))
	s.record(ctx, actor, "planner:finalize", planID, nil)
	return nil
}

// RevertPlanToDraft reopens a finalized plan. Owners only.
func (s *Service) RevertPlanToDraft(ctx context.Context, actor shared.Actor, planID uuid.UUID) error {
	if err := actor.Require(); err != nil {
		return err
	}
	if !actor.IsOwner() {
		return ErrOwnerOnly
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return lookup(err, ErrPlanNotFound)
		}
		if plan.Status != StatusFinalized {
			return ErrNotFinalized
		}
		return tx.SetStatus(ctx, planID, StatusDraft)
	})
	if err != nil {
		return s.fail("revert plan", err)
	}
	s.logger.Info("plan reverted to draft", slog.String("plan_id", planID.String()))
	s.record(ctx, actor, "planner:revert", planID, nil)
	return nil
}

// LatestFinalizedForBranch returns the branch's lines of the most recent finalized plan.
func (s *Service) LatestFinalizedForBranch(ctx context.Context, actor shared.Actor, branchID uuid.UUID) ([]PlanItem, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	plan, err := s.repo.LatestFinalized(ctx)
	if errors.Is(err, ErrRecordNotFound) {
		return []PlanItem{}, nil
	}
	if err != nil {
		return nil, shared.Dependency(err)
	}
	lines, err := s.repo.ListItems(ctx, plan.ID)
	if err != nil {
		return nil, shared.Dependency(err)
	}
	out := []PlanItem{}
	for _, l := range lines {
		if l.ToLocationID == branchID {
			out = append(out, l)
		}
	}
	return out, nil
}

// Allocation reports per item how much warehouse stock the plan has used.
func (s *Service) Allocation(ctx context.Context, planID uuid.UUID) ([]ItemAllocation, error) {
	pw, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[uuid.UUID]*ItemAllocation)
	var order []uuid.UUID
	for _, l := range pw.Items {
		a, ok := byItem[l.ItemID]
		if !ok {
			a = &ItemAllocation{ItemID: l.ItemID, ByBranch: make(map[uuid.UUID]decimal.Decimal)}
			byItem[l.ItemID] = a
			order = append(order, l.ItemID)
		}
		a.Planned = a.Planned.Add(l.Qty)
		a.ByBranch[l.ToLocationID] = a.ByBranch[l.ToLocationID].Add(l.Qty)
	}
	out := make([]ItemAllocation, 0, len(order))
	for _, id := range order {
		a := byItem[id]
		onHand, err := s.stock.WarehouseOnHand(ctx, id)
		if err != nil {
			return nil, err
		}
		a.WarehouseOnHand = onHand
		a.Remaining = onHand.Sub(a.Planned)
		out = append(out, *a)
	}
	return out, nil
}

func (s *Service) checkCeiling(ctx context.Context, tx TxRepository, item masterdata.Item, planID, toLocationID uuid.UUID, qty decimal.Decimal) error {
	lines, err := tx.ItemLines(ctx, planID, item.ID)
	if err != nil {
		return err
	}
	onHand, err := tx.WarehouseOnHand(ctx, item.ID)
	if err != nil {
		return err
	}
	others := OtherBranchesTotal(lines, item.ID, toLocationID)
	if WithinCeiling(others, qty, onHand) {
		return nil
	}
	return ErrExceedsWarehouseStock.Withf("Exceeds available warehouse stock: %s on hand, %s already planned for other branches",
		item.Format(onHand), item.Format(others))
}

func (s *Service) withItems(ctx context.Context, plan Plan) (PlanWithItems, error) {
	items, err := s.repo.ListItems(ctx, plan.ID)
	if err != nil {
		return PlanWithItems{}, shared.Dependency(err)
	}
	if items == nil {
		items = []PlanItem{}
	}
	return PlanWithItems{Plan: plan, Items: items}, nil
}

// reject counts an expected rejection and returns it.
func (s *Service) reject(err *shared.Error) error {
	if s.metrics != nil {
		s.metrics.AllocationRejected(err.Code)
	}
	return err
}

func (s *Service) fail(op string, err error) error {
	var domain *shared.Error
	if errors.As(err, &domain) {
		if errors.Is(err, ErrExceedsWarehouseStock) || errors.Is(err, ErrPlanFinalized) {
			if s.metrics != nil {
				s.metrics.AllocationRejected(domain.Code)
			}
		}
		return err
	}
	s.logger.Error(op+" failed", slog.Any("error", err))
	return shared.Dependency(err)
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "delivery_plans",
		EntityID: id.String(),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func lookup(err error, notFound *shared.Error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return notFound
	}
	return err
}
