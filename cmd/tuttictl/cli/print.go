package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tutti-stock/tutti-stock/internal/counts"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/report"
)

// LevelSource lists derived inventory levels.
type LevelSource interface {
	Levels(ctx context.Context, filter inventory.LevelFilter) ([]inventory.Level, error)
}

// OrphanSource finds stock count headers without items.
type OrphanSource interface {
	FindOrphans(ctx context.Context, olderThan time.Duration) ([]counts.StockCount, error)
}

// PrintLevels writes levels as an aligned table.
func PrintLevels(ctx context.Context, w io.Writer, src LevelSource, filter inventory.LevelFilter) error {
	rows, err := src.Levels(ctx, filter)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tITEM\tLOCATION\tON HAND\tQUANTITY\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.SKU, r.ItemName, r.LocationName, r.OnHand.String(), r.Display, r.Severity)
	}
	return tw.Flush()
}

// ExportLevels writes levels as an xlsx workbook.
func ExportLevels(ctx context.Context, w io.Writer, src LevelSource, filter inventory.LevelFilter) (int, error) {
	rows, err := src.Levels(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := report.WriteInventoryWorkbook(w, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// PrintOrphans lists count headers saved without any item rows.
func PrintOrphans(ctx context.Context, w io.Writer, src OrphanSource, olderThan time.Duration) (int, error) {
	rows, err := src.FindOrphans(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no orphaned stock counts")
		return 0, err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNT\tLOCATION\tWEEK OF\tCREATED")
	for _, c := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.LocationID, c.WeekOf.Format(shared.DateLayout), c.CreatedAt.Format(time.RFC3339))
	}
	return len(rows), tw.Flush()
}
