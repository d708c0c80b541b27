package inventory

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase, collate.Loose)
}

// SortLevels orders rows by category, item name, then location name, using
// locale-aware comparison so "éclair" sorts next to "eclair".
func SortLevels(rows []Level) {
	c := newCollator()
	sort.SliceStable(rows, func(i, j int) bool {
		if d := c.CompareString(rows[i].Category, rows[j].Category); d != 0 {
			return d < 0
		}
		if d := c.CompareString(rows[i].ItemName, rows[j].ItemName); d != 0 {
			return d < 0
		}
		return c.CompareString(rows[i].LocationName, rows[j].LocationName) < 0
	})
}

// SortByOnHand orders rows by ascending on-hand, ties by item name.
func SortByOnHand(rows []Level) {
	c := newCollator()
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].OnHand.Equal(rows[j].OnHand) {
			return rows[i].OnHand.LessThan(rows[j].OnHand)
		}
		return c.CompareString(rows[i].ItemName, rows[j].ItemName) < 0
	})
}
