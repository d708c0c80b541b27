package planner

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// PlanStatus enumerates the plan state machine.
type PlanStatus string

const (
	StatusDraft     PlanStatus = "draft"
	StatusFinalized PlanStatus = "finalized"
)

// Plan is a weekly delivery plan.
type Plan struct {
	ID        uuid.UUID  `json:"id"`
	WeekOf    time.Time  `json:"week_of"`
	Status    PlanStatus `json:"status"`
	CreatedBy uuid.UUID  `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// PlanItem is the planned quantity, in pieces, of one item for one branch.
type PlanItem struct {
	ID           uuid.UUID       `json:"id"`
	PlanID       uuid.UUID       `json:"plan_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	ToLocationID uuid.UUID       `json:"to_location_id"`
	Qty          decimal.Decimal `json:"qty"`
}

// PlanWithItems bundles a plan and its lines.
type PlanWithItems struct {
	Plan  Plan       `json:"plan"`
	Items []PlanItem `json:"items"`
}

// AddItemInput describes a line to add or replace. Qty is in Unit, pieces when empty.
type AddItemInput struct {
	PlanID       uuid.UUID
	ItemID       uuid.UUID
	ToLocationID uuid.UUID
	Qty          decimal.Decimal
	Unit         units.BaseUnit
}

// ItemAllocation summarises how much of an item's warehouse stock a plan uses.
type ItemAllocation struct {
	ItemID          uuid.UUID                     `json:"item_id"`
	WarehouseOnHand decimal.Decimal               `json:"warehouse_on_hand"`
	Planned         decimal.Decimal               `json:"planned"`
	Remaining       decimal.Decimal               `json:"remaining"`
	ByBranch        map[uuid.UUID]decimal.Decimal `json:"by_branch"`
}

// OtherBranchesTotal sums the lines for itemID excluding toLocationID, the
// branch whose line is about to be replaced.
func OtherBranchesTotal(lines []PlanItem, itemID, toLocationID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.ItemID == itemID && l.ToLocationID != toLocationID {
			total = total.Add(l.Qty)
		}
	}
	return total
}

// WithinCeiling reports whether otherBranches + qty stays at or below onHand.
func WithinCeiling(otherBranches, qty, onHand decimal.Decimal) bool {
	return !otherBranches.Add(qty).GreaterThan(onHand)
}

// Rejection reasons reported to metrics.
const (
	ReasonExceedsStock    = "exceeds_warehouse_stock"
	ReasonPlanFinalized   = "plan_finalized"
	ReasonInvalidQuantity = "invalid_quantity"
)

var (
	// ErrExceedsWarehouseStock rejects lines that would over-allocate warehouse stock.
	ErrExceedsWarehouseStock = shared.NewError(shared.KindStateConflict, ReasonExceedsStock, "Exceeds available warehouse stock")
	// ErrPlanFinalized rejects edits to a finalized plan.
	ErrPlanFinalized = shared.NewError(shared.KindStateConflict, ReasonPlanFinalized, "This plan is finalized and can no longer be edited")
	// ErrInvalidQuantity rejects non-positive plan quantities.
	ErrInvalidQuantity = shared.NewError(shared.KindValidation, ReasonInvalidQuantity, "Quantity must be greater than 0")
	// ErrEmptyPlan rejects finalizing a plan without lines.
	ErrEmptyPlan = shared.NewError(shared.KindStateConflict, "empty_plan", "Cannot finalize an empty plan")
	// ErrAlreadyFinalized rejects a second finalize.
	ErrAlreadyFinalized = shared.NewError(shared.KindStateConflict, "already_finalized", "This plan has already been finalized")
	// ErrOwnerOnly rejects reverts by non-owners.
	ErrOwnerOnly = shared.NewError(shared.KindAuthorization, "owner_only", "Only owners can revert finalized plans")
	// ErrNotFinalized rejects reverting a plan that is still a draft.
	ErrNotFinalized = shared.NewError(shared.KindStateConflict, "not_finalized", "Only finalized plans can be reverted to draft")
	// ErrDraftExists rejects a revert when the week already has another draft.
	ErrDraftExists = shared.NewError(shared.KindStateConflict, "draft_exists", "Another draft plan already exists for this week")
	// ErrPlanNotFound is returned for unknown plans.
	ErrPlanNotFound = shared.NewError(shared.KindNotFound, "plan_not_found", "Plan not found")
	// ErrPlanItemNotFound is returned for unknown plan lines.
	ErrPlanItemNotFound = shared.NewError(shared.KindNotFound, "plan_item_not_found", "Plan item not found")
)
