package masterdata

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// LocationType distinguishes the central warehouse from branches.
type LocationType string

const (
	LocationWarehouse LocationType = "warehouse"
	LocationBranch    LocationType = "branch"
)

// Location is a stock-holding place.
type Location struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	Type     LocationType `json:"type"`
	IsActive bool         `json:"is_active"`
}

// IsBranch reports whether the location is a branch.
func (l Location) IsBranch() bool { return l.Type == LocationBranch }

// Item is a catalog entry. All of its stock quantities are pieces.
type Item struct {
	ID             uuid.UUID       `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	BaseUnit       units.BaseUnit  `json:"base_unit"`
	PiecesPerBox   int             `json:"pieces_per_box"`
	LooseUnitLabel string          `json:"loose_unit_label"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	TargetStock    decimal.Decimal `json:"target_stock"`
	IsActive       bool            `json:"is_active"`
	IsFavorite     bool            `json:"is_favorite"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Ratio is the pieces-per-box used in arithmetic for this item.
func (i Item) Ratio() int {
	return units.EffectivePiecesPerBox(i.BaseUnit, i.PiecesPerBox)
}

// TracksLoose reports whether counts for this item are entered as boxes plus loose pieces.
func (i Item) TracksLoose() bool {
	return i.BaseUnit == units.Boxes && i.PiecesPerBox > 1
}

// Format renders pieces in the item's base unit.
func (i Item) Format(pieces decimal.Decimal) string {
	return units.FormatQuantity(pieces, i.BaseUnit, i.PiecesPerBox, i.LooseUnitLabel)
}

// ToPieces converts qty entered in unit into pieces of this item.
func (i Item) ToPieces(qty decimal.Decimal, unit units.BaseUnit) decimal.Decimal {
	return units.ToCanonical(qty, unit, i.Ratio())
}

// ItemInput carries the editable fields of an item.
type ItemInput struct {
	SKU            string
	Name           string
	Category       string
	BaseUnit       string
	PiecesPerBox   int
	LooseUnitLabel string
	ReorderPoint   decimal.Decimal
	TargetStock    decimal.Decimal
}

// normalize applies catalog defaults and rejects unusable input.
func (in ItemInput) normalize() (Item, error) {
	item := Item{
		SKU:            strings.TrimSpace(in.SKU),
		Name:           strings.TrimSpace(in.Name),
		Category:       strings.TrimSpace(in.Category),
		PiecesPerBox:   in.PiecesPerBox,
		LooseUnitLabel: strings.TrimSpace(in.LooseUnitLabel),
		ReorderPoint:   in.ReorderPoint,
		TargetStock:    in.TargetStock,
	}
	if item.SKU == "" || item.Name == "" {
		return Item{}, shared.Validation("SKU and name are required")
	}
	item.BaseUnit = units.Boxes
	if strings.TrimSpace(in.BaseUnit) != "" {
		base, err := units.ParseBaseUnit(in.BaseUnit)
		if err != nil {
			return Item{}, err
		}
		item.BaseUnit = base
	}
	if item.PiecesPerBox < 1 || item.BaseUnit == units.Pieces {
		item.PiecesPerBox = 1
	}
	if item.LooseUnitLabel == "" {
		item.LooseUnitLabel = units.DefaultLooseLabel
	}
	if item.ReorderPoint.IsNegative() || item.TargetStock.IsNegative() {
		return Item{}, shared.Validation("reorder point and target stock cannot be negative")
	}
	return item, nil
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	ActiveOnly bool
	Category   string
	Search     string
}

// LocationFilter narrows location listings.
type LocationFilter struct {
	Type       LocationType
	ActiveOnly bool
}

var (
	// ErrWarehouseMissing means no location of type warehouse exists.
	ErrWarehouseMissing = shared.NewError(shared.KindDependency, "warehouse_missing", "No warehouse location is configured")
	// ErrWarehouseAmbiguous means more than one warehouse exists.
	ErrWarehouseAmbiguous = shared.NewError(shared.KindDependency, "warehouse_ambiguous", "More than one warehouse location is configured")
	// ErrNotBranch is returned when a branch was required.
	ErrNotBranch = shared.NewError(shared.KindValidation, "not_a_branch", "Location is not a branch")
	// ErrInactiveLocation is returned when writing against a deactivated location.
	ErrInactiveLocation = shared.NewError(shared.KindValidation, "inactive_location", "Location is not active")
)
