package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LevelKey addresses one item at one location.
type LevelKey struct {
	ItemID     uuid.UUID
	LocationID uuid.UUID
}

// Levels holds folded on-hand totals. Missing keys are zero.
type Levels map[LevelKey]decimal.Decimal

// Fold sums a ledger into on-hand totals: every entry adds Qty at its
// destination and subtracts it at its source. The result does not depend on
// input order and is never clamped at zero.
func Fold(txs []Transaction) Levels {
	levels := make(Levels)
	for _, t := range txs {
		if t.ToLocationID != nil {
			k := LevelKey{ItemID: t.ItemID, LocationID: *t.ToLocationID}
			levels[k] = levels[k].Add(t.Qty)
		}
		if t.FromLocationID != nil {
			k := LevelKey{ItemID: t.ItemID, LocationID: *t.FromLocationID}
			levels[k] = levels[k].Sub(t.Qty)
		}
	}
	return levels
}

// OnHand returns the folded quantity for item at location.
func (l Levels) OnHand(itemID, locationID uuid.UUID) decimal.Decimal {
	return l[LevelKey{ItemID: itemID, LocationID: locationID}]
}

// ForLocation returns per-item totals at one location.
func (l Levels) ForLocation(locationID uuid.UUID) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal)
	for k, v := range l {
		if k.LocationID == locationID {
			out[k.ItemID] = v
		}
	}
	return out
}

// Merge adds other into l.
func (l Levels) Merge(other Levels) {
	for k, v := range other {
		l[k] = l[k].Add(v)
	}
}
