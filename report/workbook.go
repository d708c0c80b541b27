package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
)

// InventorySheet is the worksheet name of the inventory export.
const InventorySheet = "Inventory"

var inventoryHeader = []any{"SKU", "Item", "Category", "On hand (pcs)", "Quantity", "Reorder point", "Target stock", "Status"}

// WriteInventoryWorkbook writes levels as an xlsx workbook to w.
func WriteInventoryWorkbook(w io.Writer, rows []inventory.Level) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", InventorySheet); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(InventorySheet, "A1", &inventoryHeader); err != nil {
		return fmt.Errorf("report: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: style: %w", err)
	}
	if err := f.SetRowStyle(InventorySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}

	for i, lvl := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			lvl.SKU,
			lvl.ItemName,
			lvl.Category,
			lvl.OnHand.InexactFloat64(),
			lvl.Display,
			lvl.ReorderPoint.InexactFloat64(),
			lvl.TargetStock.InexactFloat64(),
			string(lvl.Severity),
		}
		if err := f.SetSheetRow(InventorySheet, cell, &values); err != nil {
			return fmt.Errorf("report: row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(InventorySheet, "A", "A", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(InventorySheet, "B", "B", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(InventorySheet, "E", "E", 20); err != nil {
		return err
	}
	return f.Write(w)
}
