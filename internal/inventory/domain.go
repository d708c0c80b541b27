package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

// TransactionType enumerates supported ledger movements.
type TransactionType string

const (
	// TransactionReceive brings stock in from outside into ToLocationID.
	TransactionReceive TransactionType = "RECEIVE"
	// TransactionTransfer moves stock from FromLocationID to ToLocationID.
	TransactionTransfer TransactionType = "TRANSFER"
	// TransactionAdjust corrects stock at exactly one location.
	TransactionAdjust TransactionType = "ADJUST"
)

// Transaction is one immutable ledger entry. Qty is pieces and never negative;
// direction is carried by which location fields are set.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	Type           TransactionType `json:"type"`
	ItemID         uuid.UUID       `json:"item_id"`
	FromLocationID *uuid.UUID      `json:"from_location_id,omitempty"`
	ToLocationID   *uuid.UUID      `json:"to_location_id,omitempty"`
	Qty            decimal.Decimal `json:"qty"`
	Note           string          `json:"note,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Validate checks the structural invariants of an entry.
func (t Transaction) Validate() error {
	if t.ItemID == uuid.Nil {
		return shared.Validation("item is required")
	}
	if t.Qty.IsNegative() {
		return shared.Validation("quantity cannot be negative")
	}
	switch t.Type {
	case TransactionReceive:
		if t.ToLocationID == nil || t.FromLocationID != nil {
			return shared.Validation("a receipt needs a destination and no source")
		}
	case TransactionTransfer:
		if t.ToLocationID == nil || t.FromLocationID == nil {
			return shared.Validation("a transfer needs a source and a destination")
		}
		if *t.ToLocationID == *t.FromLocationID {
			return shared.Validation("source and destination must differ")
		}
	case TransactionAdjust:
		if (t.ToLocationID == nil) == (t.FromLocationID == nil) {
			return shared.Validation("an adjustment affects exactly one location")
		}
		if t.Reason == "" {
			return ErrReasonRequired
		}
	default:
		return shared.Validation("unknown transaction type %q", t.Type)
	}
	return nil
}

// Severity marks how an on-hand figure should be displayed.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityLow      Severity = "low"
	SeverityNegative Severity = "negative"
)

// Level is the derived on-hand quantity of an item at a location.
type Level struct {
	ItemID         uuid.UUID               `json:"item_id"`
	SKU            string                  `json:"sku"`
	ItemName       string                  `json:"item_name"`
	Category       string                  `json:"category,omitempty"`
	BaseUnit       units.BaseUnit          `json:"base_unit"`
	PiecesPerBox   int                     `json:"pieces_per_box"`
	LooseUnitLabel string                  `json:"loose_unit_label"`
	ReorderPoint   decimal.Decimal         `json:"reorder_point"`
	TargetStock    decimal.Decimal         `json:"target_stock"`
	LocationID     uuid.UUID               `json:"location_id"`
	LocationName   string                  `json:"location_name"`
	LocationType   masterdata.LocationType `json:"location_type"`
	OnHand         decimal.Decimal         `json:"on_hand"`
	Display        string                  `json:"display"`
	Severity       Severity                `json:"severity"`
}

// IsLow reports whether on-hand is at or below the reorder point.
func (l Level) IsLow() bool {
	return l.OnHand.LessThanOrEqual(l.ReorderPoint)
}

// Classify returns the display severity; negative stock outranks low stock.
func (l Level) Classify() Severity {
	switch {
	case l.OnHand.IsNegative():
		return SeverityNegative
	case l.IsLow():
		return SeverityLow
	default:
		return SeverityOK
	}
}

func (l Level) decorate() Level {
	l.Display = units.FormatQuantity(l.OnHand, l.BaseUnit, l.PiecesPerBox, l.LooseUnitLabel)
	l.Severity = l.Classify()
	return l
}

// LevelFilter narrows level listings.
type LevelFilter struct {
	LocationType masterdata.LocationType
	LocationID   uuid.UUID
	ItemID       uuid.UUID
	Category     string
	Search       string
	LowOnly      bool
}

// HistoryFilter bounds ledger listings.
type HistoryFilter struct {
	Type       TransactionType
	LocationID uuid.UUID
	ItemID     uuid.UUID
	From       time.Time
	To         time.Time
	Limit      int
}

// Line is one item of a posting, in the unit the user entered it.
type Line struct {
	ItemID uuid.UUID       `json:"item_id"`
	Qty    decimal.Decimal `json:"qty"`
	Unit   units.BaseUnit  `json:"unit,omitempty"`
}

// ReceiveInput describes stock arriving from a supplier.
type ReceiveInput struct {
	ToLocationID uuid.UUID
	Lines        []Line
	Note         string
	RequestKey   string
}

// DeliveryInput describes a warehouse to branch delivery.
type DeliveryInput struct {
	ToLocationID uuid.UUID
	Lines        []Line
	Note         string
	RequestKey   string
}

// Direction selects which side of an adjustment is populated.
type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionRemove Direction = "remove"
)

// AdjustmentInput describes a manual correction at one location.
type AdjustmentInput struct {
	LocationID uuid.UUID
	Line       Line
	Direction  Direction
	Reason     string
	Note       string
	RequestKey string
}

// Posting is the result of a ledger write.
type Posting struct {
	Type         TransactionType `json:"type"`
	Transactions []Transaction   `json:"transactions"`
}

var (
	// ErrReasonRequired rejects adjustments without a reason.
	ErrReasonRequired = shared.NewError(shared.KindValidation, "reason_required", "An adjustment needs a reason")
	// ErrNoLines rejects postings without items.
	ErrNoLines = shared.NewError(shared.KindValidation, "no_lines", "Add at least one item")
	// ErrInvalidQuantity rejects non-positive posting quantities.
	ErrInvalidQuantity = shared.NewError(shared.KindValidation, "invalid_quantity", "Quantity must be greater than 0")
	// ErrInvalidDirection rejects unknown adjustment directions.
	ErrInvalidDirection = shared.NewError(shared.KindValidation, "invalid_direction", "Direction must be add or remove")
)
