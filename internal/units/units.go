// Package units converts item quantities between display units and the
// canonical storage unit (pieces).
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// BaseUnit is the unit an item is nominally tracked in.
type BaseUnit string

const (
	Boxes  BaseUnit = "boxes"
	Pieces BaseUnit = "pieces"
)

// DefaultLooseLabel names loose pieces when an item has no label of its own.
const DefaultLooseLabel = "pcs"

// ParseBaseUnit accepts "boxes", "pieces" and the short form "pcs".
func ParseBaseUnit(raw string) (BaseUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "boxes", "box":
		return Boxes, nil
	case "pieces", "piece", "pcs":
		return Pieces, nil
	}
	return "", shared.Validation("unknown unit %q", raw)
}

// Valid reports whether u is a known unit.
func (u BaseUnit) Valid() bool { return u == Boxes || u == Pieces }

// EffectivePiecesPerBox returns the ratio used in arithmetic: pieces items and
// non-positive ratios count as one piece per box.
func EffectivePiecesPerBox(base BaseUnit, piecesPerBox int) int {
	if base == Pieces || piecesPerBox < 1 {
		return 1
	}
	return piecesPerBox
}

// ToCanonical converts qty entered in unit into pieces.
func ToCanonical(qty decimal.Decimal, unit BaseUnit, piecesPerBox int) decimal.Decimal {
	if unit != Boxes {
		return qty
	}
	if piecesPerBox < 1 {
		piecesPerBox = 1
	}
	return qty.Mul(decimal.NewFromInt(int64(piecesPerBox)))
}

// FromCanonical converts pieces into unit. The result may be fractional.
func FromCanonical(pieces decimal.Decimal, unit BaseUnit, piecesPerBox int) decimal.Decimal {
	if unit != Boxes || piecesPerBox <= 1 {
		return pieces
	}
	return pieces.Div(decimal.NewFromInt(int64(piecesPerBox)))
}

// DisplayWholeUnits returns the compact figure shown in listings: whole boxes
// for box-tracked items, pieces otherwise. The remainder is dropped.
func DisplayWholeUnits(pieces decimal.Decimal, base BaseUnit, piecesPerBox int) decimal.Decimal {
	if base != Boxes || piecesPerBox <= 1 {
		return pieces
	}
	return pieces.Div(decimal.NewFromInt(int64(piecesPerBox))).Floor()
}

// Split decomposes pieces into whole boxes and the remaining loose pieces.
// Join(Split(p, n)) == p for every p and n.
func Split(pieces decimal.Decimal, piecesPerBox int) (boxes, remainder decimal.Decimal) {
	if piecesPerBox < 1 {
		piecesPerBox = 1
	}
	n := decimal.NewFromInt(int64(piecesPerBox))
	boxes = pieces.Div(n).Floor()
	remainder = pieces.Sub(boxes.Mul(n))
	return boxes, remainder
}

// Join recomposes a boxes + loose pieces pair into pieces.
func Join(boxes, remainder decimal.Decimal, piecesPerBox int) decimal.Decimal {
	if piecesPerBox < 1 {
		piecesPerBox = 1
	}
	return boxes.Mul(decimal.NewFromInt(int64(piecesPerBox))).Add(remainder)
}

// FormatQuantity renders pieces for humans, e.g. "1 box + 3 pcs".
func FormatQuantity(pieces decimal.Decimal, base BaseUnit, piecesPerBox int, unitLabel string) string {
	if pieces.IsNegative() {
		return "-" + FormatQuantity(pieces.Neg(), base, piecesPerBox, unitLabel)
	}
	label := unitLabel
	if strings.TrimSpace(label) == "" {
		label = DefaultLooseLabel
	}
	if base != Boxes {
		return fmt.Sprintf("%s %s", pieces.String(), label)
	}
	if piecesPerBox <= 1 {
		return boxCount(pieces)
	}
	boxes, remainder := Split(pieces, piecesPerBox)
	switch {
	case remainder.IsZero():
		return boxCount(boxes)
	case boxes.IsZero():
		return fmt.Sprintf("%s %s", remainder.String(), label)
	default:
		return fmt.Sprintf("%s + %s %s", boxCount(boxes), remainder.String(), label)
	}
}

func boxCount(n decimal.Decimal) string {
	if n.Equal(decimal.NewFromInt(1)) {
		return "1 box"
	}
	return n.String() + " boxes"
}

// ParseQuantity reads a user-entered number; malformed input yields zero.
func ParseQuantity(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}
