package units

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// EntryMode selects the quantity granularity an input surface accepts.
type EntryMode string

const (
	// EntryWhole accepts non-negative whole numbers (counter entry).
	EntryWhole EntryMode = "whole"
	// EntryFractional accepts non-negative multiples of one half (manager entry).
	EntryFractional EntryMode = "fractional"
)

var half = decimal.NewFromFloat(0.5)

// ParseEntryMode parses a configured mode; empty selects whole units.
func ParseEntryMode(raw string) (EntryMode, error) {
	switch EntryMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", EntryWhole:
		return EntryWhole, nil
	case EntryFractional:
		return EntryFractional, nil
	}
	return "", shared.Validation("unknown entry mode %q", raw)
}

// Step is the smallest increment accepted by the mode.
func (m EntryMode) Step() decimal.Decimal {
	if m == EntryFractional {
		return half
	}
	return decimal.NewFromInt(1)
}

// Validate checks qty is non-negative and a multiple of the mode's step.
func (m EntryMode) Validate(qty decimal.Decimal) error {
	if qty.IsNegative() {
		return shared.Validation("quantity cannot be negative")
	}
	if !qty.Mod(m.Step()).IsZero() {
		if m == EntryFractional {
			return shared.Validation("quantity %s must be a multiple of 0.5", qty.String())
		}
		return shared.Validation("quantity %s must be a whole number", qty.String())
	}
	return nil
}
