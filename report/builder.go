// Package report builds the weekly stock summary and spreadsheet exports.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Ledger lists raw ledger entries without a row cap.
type Ledger interface {
	ListTransactions(ctx context.Context, filter inventory.HistoryFilter) ([]inventory.Transaction, error)
}

// Stock supplies derived levels.
type Stock interface {
	Levels(ctx context.Context, filter inventory.LevelFilter) ([]inventory.Level, error)
	LowStock(ctx context.Context) ([]inventory.Level, error)
}

// Catalog resolves location and item names.
type Catalog interface {
	ListLocations(ctx context.Context, filter masterdata.LocationFilter) ([]masterdata.Location, error)
	ItemIndex(ctx context.Context, filter masterdata.ItemFilter) (map[uuid.UUID]masterdata.Item, error)
}

// BranchTransfers totals the pieces delivered to one branch.
type BranchTransfers struct {
	LocationID   uuid.UUID       `json:"location_id"`
	LocationName string          `json:"location_name"`
	Lines        int             `json:"lines"`
	Pieces       decimal.Decimal `json:"pieces"`
}

// MovedItem totals the pieces of one item delivered to all branches.
type MovedItem struct {
	ItemID  uuid.UUID       `json:"item_id"`
	SKU     string          `json:"sku"`
	Name    string          `json:"name"`
	Pieces  decimal.Decimal `json:"pieces"`
	Display string          `json:"display"`
}

// Weekly is the summary of warehouse deliveries over a period.
type Weekly struct {
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	TransfersByBranch []BranchTransfers `json:"transfers_by_branch"`
	TopItems          []MovedItem       `json:"top_items"`
	LowStock          []inventory.Level `json:"low_stock"`
}

// Builder assembles reports from the ledger and catalog.
type Builder struct {
	ledger  Ledger
	stock   Stock
	catalog Catalog
	topN    int
}

// NewBuilder constructs a Builder returning at most topN moved items.
func NewBuilder(ledger Ledger, stock Stock, catalog Catalog, topN int) *Builder {
	if topN <= 0 {
		topN = 10
	}
	return &Builder{ledger: ledger, stock: stock, catalog: catalog, topN: topN}
}

// Weekly summarises transfers created in [from, to).
func (b *Builder) Weekly(ctx context.Context, from, to time.Time) (Weekly, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return Weekly{}, shared.Validation("report period is empty")
	}
	var (
		transfers []inventory.Transaction
		lowStock  []inventory.Level
		branches  []masterdata.Location
		items     map[uuid.UUID]masterdata.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transfers, err = b.ledger.ListTransactions(gctx, inventory.HistoryFilter{
			Type: inventory.TransactionTransfer,
			From: from,
			To:   to.Add(-time.Nanosecond),
		})
		return shared.Dependency(err)
	})
	g.Go(func() error {
		var err error
		lowStock, err = b.stock.LowStock(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		branches, err = b.catalog.ListLocations(gctx, masterdata.LocationFilter{Type: masterdata.LocationBranch})
		return err
	})
	g.Go(func() error {
		var err error
		items, err = b.catalog.ItemIndex(gctx, masterdata.ItemFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return Weekly{}, err
	}

	names := make(map[uuid.UUID]string, len(branches))
	for _, br := range branches {
		names[br.ID] = br.Name
	}
	byBranch := make(map[uuid.UUID]*BranchTransfers)
	byItem := make(map[uuid.UUID]decimal.Decimal)
	for _, t := range transfers {
		if t.ToLocationID == nil {
			continue
		}
		name, ok := names[*t.ToLocationID]
		if !ok {
			// Transfers back into the warehouse are not deliveries.
			continue
		}
		bt, ok := byBranch[*t.ToLocationID]
		if !ok {
			bt = &BranchTransfers{LocationID: *t.ToLocationID, LocationName: name}
			byBranch[*t.ToLocationID] = bt
		}
		bt.Lines++
		bt.Pieces = bt.Pieces.Add(t.Qty)
		byItem[t.ItemID] = byItem[t.ItemID].Add(t.Qty)
	}

	out := Weekly{From: from, To: to, TransfersByBranch: []BranchTransfers{}, TopItems: []MovedItem{}, LowStock: lowStock}
	for _, bt := range byBranch {
		out.TransfersByBranch = append(out.TransfersByBranch, *bt)
	}
	sort.Slice(out.TransfersByBranch, func(i, j int) bool {
		return out.TransfersByBranch[i].LocationName < out.TransfersByBranch[j].LocationName
	})
	for id, qty := range byItem {
		item := items[id]
		out.TopItems = append(out.TopItems, MovedItem{
			ItemID:  id,
			SKU:     item.SKU,
			Name:    item.Name,
			Pieces:  qty,
			Display: item.Format(qty),
		})
	}
	sort.Slice(out.TopItems, func(i, j int) bool {
		x, y := out.TopItems[i], out.TopItems[j]
		if !x.Pieces.Equal(y.Pieces) {
			return x.Pieces.GreaterThan(y.Pieces)
		}
		return x.Name < y.Name
	})
	if len(out.TopItems) > b.topN {
		out.TopItems = out.TopItems[:b.topN]
	}
	if out.LowStock == nil {
		out.LowStock = []inventory.Level{}
	}
	return out, nil
}

// WarehouseSnapshot returns the warehouse levels for export.
func (b *Builder) WarehouseSnapshot(ctx context.Context) ([]inventory.Level, error) {
	return b.stock.Levels(ctx, inventory.LevelFilter{LocationType: masterdata.LocationWarehouse})
}
