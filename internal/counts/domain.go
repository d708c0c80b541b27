package counts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// StockCount is a branch's self-reported weekly count.
type StockCount struct {
	ID          uuid.UUID        `json:"id"`
	LocationID  uuid.UUID        `json:"location_id"`
	CountedBy   string           `json:"counted_by"`
	SubmittedBy uuid.UUID        `json:"submitted_by"`
	WeekOf      time.Time        `json:"week_of"`
	CreatedAt   time.Time        `json:"created_at"`
	Items       []StockCountItem `json:"items,omitempty"`
}

// StockCountItem is one counted item in pieces. Zero is recorded explicitly.
type StockCountItem struct {
	ID           uuid.UUID       `json:"id"`
	StockCountID uuid.UUID       `json:"stock_count_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	Qty          decimal.Decimal `json:"qty"`
}

// QtyByItem indexes the rows of a count.
func (c StockCount) QtyByItem() map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(c.Items))
	for _, it := range c.Items {
		out[it.ItemID] = it.Qty
	}
	return out
}

// EntryLine is what a counter types for one item: whole boxes plus loose
// pieces for box-tracked items, or just Boxes holding the count otherwise.
type EntryLine struct {
	ItemID uuid.UUID       `json:"item_id"`
	Boxes  decimal.Decimal `json:"boxes"`
	Loose  decimal.Decimal `json:"loose"`
}

// ToPieces converts an entry line into canonical pieces.
func ToPieces(item masterdata.Item, line EntryLine) decimal.Decimal {
	if item.TracksLoose() {
		return units.Join(line.Boxes, line.Loose, item.PiecesPerBox)
	}
	return line.Boxes.Add(line.Loose)
}

// FromPieces reconstructs the entry line from stored pieces; it inverts
// ToPieces for any line entered as non-negative integers.
func FromPieces(item masterdata.Item, pieces decimal.Decimal) EntryLine {
	if item.TracksLoose() {
		boxes, loose := units.Split(pieces, item.PiecesPerBox)
		return EntryLine{ItemID: item.ID, Boxes: boxes, Loose: loose}
	}
	return EntryLine{ItemID: item.ID, Boxes: pieces, Loose: decimal.Zero}
}

// ExistingCount is the newest count for a branch and week, prepared for editing.
type ExistingCount struct {
	Count        StockCount  `json:"count"`
	Lines        []EntryLine `json:"lines"`
	Editable     bool        `json:"editable"`
	OwnedByActor bool        `json:"owned_by_actor"`
	EditDeadline time.Time   `json:"edit_deadline"`
}

// SubmitInput carries a new count.
type SubmitInput struct {
	LocationID uuid.UUID
	CountedBy  string
	WeekOf     time.Time
	Lines      []EntryLine
}

// UpdateInput replaces the lines of an existing count.
type UpdateInput struct {
	CountID   uuid.UUID
	CountedBy string
	Lines     []EntryLine
}

// CountSummary identifies the count behind a comparison column.
type CountSummary struct {
	ID        uuid.UUID `json:"id"`
	CountedBy string    `json:"counted_by"`
	CreatedAt time.Time `json:"created_at"`
}

// WeekSnapshot is one branch's column for one week.
type WeekSnapshot struct {
	WeekOf          time.Time                     `json:"week_of"`
	Count           *CountSummary                 `json:"count,omitempty"`
	Counted         map[uuid.UUID]decimal.Decimal `json:"counted,omitempty"`
	CountRows       map[uuid.UUID]uuid.UUID       `json:"count_rows,omitempty"`
	Delivered       map[uuid.UUID]decimal.Decimal `json:"delivered,omitempty"`
	FirstDeliveryAt *time.Time                    `json:"first_delivery_at,omitempty"`
}

// BranchComparison lines up three weeks of counts and deliveries for a branch.
type BranchComparison struct {
	BranchID   uuid.UUID      `json:"branch_id"`
	BranchName string         `json:"branch_name"`
	Weeks      []WeekSnapshot `json:"weeks"`
}

// ComparisonView is the owner-facing branch counts page. Weeks run oldest first.
type ComparisonView struct {
	Weeks    []time.Time        `json:"weeks"`
	Items    []masterdata.Item  `json:"items"`
	Branches []BranchComparison `json:"branches"`
}

// ComparisonWeeks returns the Sundays of two weeks ago, last week and this week.
func ComparisonWeeks(asOf time.Time) []time.Time {
	this := shared.CurrentWeek(asOf)
	return []time.Time{this.AddDate(0, 0, -14), this.AddDate(0, 0, -7), this}
}

var (
	// ErrDuplicateCount rejects a second count for the same branch and week.
	ErrDuplicateCount = shared.NewError(shared.KindStateConflict, "duplicate_count", "A count for this branch and week has already been submitted")
	// ErrNotOwner rejects edits by someone other than the submitter.
	ErrNotOwner = shared.NewError(shared.KindAuthorization, "not_owner", "Only the person who submitted this count can edit it")
	// ErrEditWindowExpired rejects edits after the edit window closed.
	ErrEditWindowExpired = shared.NewError(shared.KindStateConflict, "edit_window_expired", "This count can no longer be edited")
	// ErrCountedByRequired rejects counts without a counter name.
	ErrCountedByRequired = shared.NewError(shared.KindValidation, "counted_by_required", "Enter who counted the stock")
	// ErrCountNotFound is returned for unknown counts and count rows.
	ErrCountNotFound = shared.NewError(shared.KindNotFound, "stock_count_not_found", "Stock count not found")
	// ErrUnknownItem rejects lines for items that are not active.
	ErrUnknownItem = shared.NewError(shared.KindValidation, "unknown_item", "Item is not part of the active catalog")
)
