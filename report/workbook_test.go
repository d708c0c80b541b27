package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
)

func TestWriteInventoryWorkbook(t *testing.T) {
	rows := []inventory.Level{
		{SKU: "CHP", ItemName: "Chips", Category: "Snacks", OnHand: decimal.NewFromInt(15), Display: "1 box + 3 pcs",
			ReorderPoint: decimal.NewFromInt(12), TargetStock: decimal.NewFromInt(48), Severity: inventory.SeverityOK},
		{SKU: "MLK", ItemName: "Milk", OnHand: decimal.NewFromInt(-2), Display: "-2 pcs", Severity: inventory.SeverityNegative},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteInventoryWorkbook(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := f.GetRows(InventorySheet)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "SKU", got[0][0])
	require.Equal(t, "Status", got[0][7])
	require.Equal(t, []string{"CHP", "Chips", "Snacks", "15", "1 box + 3 pcs", "12", "48", "ok"}, got[1])
	require.Equal(t, "-2", got[2][3])
	require.Equal(t, "negative", got[2][7])
}
