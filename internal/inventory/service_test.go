package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/internal/units"
)

type memoryCatalog struct {
	locations []masterdata.Location
	items     map[uuid.UUID]masterdata.Item
}

func (c *memoryCatalog) Warehouse(context.Context) (masterdata.Location, error) {
	for _, l := range c.locations {
		if l.Type == masterdata.LocationWarehouse {
			return l, nil
		}
	}
	return masterdata.Location{}, masterdata.ErrWarehouseMissing
}

func (c *memoryCatalog) Location(_ context.Context, id uuid.UUID) (masterdata.Location, error) {
	for _, l := range c.locations {
		if l.ID == id {
			return l, nil
		}
	}
	return masterdata.Location{}, shared.NotFound("location")
}

func (c *memoryCatalog) Item(_ context.Context, id uuid.UUID) (masterdata.Item, error) {
	it, ok := c.items[id]
	if !ok {
		return masterdata.Item{}, shared.NotFound("item")
	}
	return it, nil
}

type memoryRepo struct {
	mu      sync.Mutex
	catalog *memoryCatalog
	txs     []Transaction
	failTx  error
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTx != nil {
		return r.failTx
	}
	staged := &memoryTx{}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	r.txs = append(r.txs, staged.txs...)
	return nil
}

type memoryTx struct {
	txs []Transaction
}

func (t *memoryTx) InsertTransactions(_ context.Context, txs []Transaction) ([]Transaction, error) {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.ID = uuid.New()
		tx.CreatedAt = time.Now().UTC()
		out = append(out, tx)
	}
	t.txs = append(t.txs, out...)
	return out, nil
}

func (r *memoryRepo) ListLevels(_ context.Context, filter LevelFilter) ([]Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	folded := Fold(r.txs)
	var out []Level
	for _, it := range r.catalog.items {
		for _, loc := range r.catalog.locations {
			if filter.LocationType != "" && loc.Type != filter.LocationType {
				continue
			}
			if filter.LocationID != uuid.Nil && loc.ID != filter.LocationID {
				continue
			}
			if filter.ItemID != uuid.Nil && it.ID != filter.ItemID {
				continue
			}
			out = append(out, Level{
				ItemID: it.ID, SKU: it.SKU, ItemName: it.Name, Category: it.Category,
				BaseUnit: it.BaseUnit, PiecesPerBox: it.PiecesPerBox, LooseUnitLabel: it.LooseUnitLabel,
				ReorderPoint: it.ReorderPoint, TargetStock: it.TargetStock,
				LocationID: loc.ID, LocationName: loc.Name, LocationType: loc.Type,
				OnHand: folded.OnHand(it.ID, loc.ID),
			})
		}
	}
	return out, nil
}

func (r *memoryRepo) WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	wh, err := r.catalog.Warehouse(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Fold(r.txs).OnHand(itemID, wh.ID), nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, filter HistoryFilter) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, t := range r.txs {
		if filter.LocationID != uuid.Nil && !touches(t, filter.LocationID) {
			continue
		}
		if filter.ItemID != uuid.Nil && t.ItemID != filter.ItemID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if !filter.To.IsZero() && t.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func touches(t Transaction, loc uuid.UUID) bool {
	return (t.FromLocationID != nil && *t.FromLocationID == loc) || (t.ToLocationID != nil && *t.ToLocationID == loc)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type recordingListener struct {
	events []PostedEvent
}

func (l *recordingListener) HandlePosted(_ context.Context, evt PostedEvent) error {
	l.events = append(l.events, evt)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	idem      *memoryIdempotency
	listener  *recordingListener
	warehouse masterdata.Location
	branch    masterdata.Location
	chips     masterdata.Item
	milk      masterdata.Item
	owner     shared.Actor
	staff     shared.Actor
}

func newFixture(t *testing.T, cache *LevelCache) fixture {
	t.Helper()
	wh := masterdata.Location{ID: uuid.New(), Name: "Central", Type: masterdata.LocationWarehouse, IsActive: true}
	br := masterdata.Location{ID: uuid.New(), Name: "Downtown", Type: masterdata.LocationBranch, IsActive: true}
	chips := masterdata.Item{ID: uuid.New(), SKU: "CH-1", Name: "Chips", Category: "Snacks", BaseUnit: units.Boxes, PiecesPerBox: 24,
		LooseUnitLabel: "bags", ReorderPoint: decimal.NewFromInt(48), IsActive: true}
	milk := masterdata.Item{ID: uuid.New(), SKU: "MK-1", Name: "Milk", Category: "Dairy", BaseUnit: units.Pieces, PiecesPerBox: 1,
		LooseUnitLabel: "pcs", ReorderPoint: decimal.NewFromInt(5), IsActive: true}
	catalog := &memoryCatalog{
		locations: []masterdata.Location{wh, br},
		items:     map[uuid.UUID]masterdata.Item{chips.ID: chips, milk.ID: milk},
	}
	repo := &memoryRepo{catalog: catalog}
	idem := &memoryIdempotency{}
	listener := &recordingListener{}
	svc := NewService(repo, catalog, nil, idem, cache, ServiceConfig{EntryMode: units.EntryFractional}, nil, listener)
	return fixture{
		svc: svc, repo: repo, idem: idem, listener: listener,
		warehouse: wh, branch: br, chips: chips, milk: milk,
		owner: shared.Actor{ID: uuid.New(), Role: shared.RoleOwner},
		staff: shared.Actor{ID: uuid.New(), Role: shared.RoleStaff},
	}
}

func TestRecordReceiveConvertsBoxesToPieces(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	posting, err := f.svc.RecordReceive(ctx, f.owner, ReceiveInput{
		Lines: []Line{{ItemID: f.chips.ID, Qty: decimal.NewFromFloat(2.5)}},
	})
	require.NoError(t, err)
	require.Len(t, posting.Transactions, 1)
	tx := posting.Transactions[0]
	assert.Equal(t, TransactionReceive, tx.Type)
	assert.True(t, tx.Qty.Equal(decimal.NewFromInt(60)))
	require.NotNil(t, tx.ToLocationID)
	assert.Equal(t, f.warehouse.ID, *tx.ToLocationID)
	assert.Nil(t, tx.FromLocationID)

	onHand, err := f.svc.WarehouseOnHand(ctx, f.chips.ID)
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(60)))
	require.Len(t, f.listener.events, 1)
	assert.Equal(t, 1, f.listener.events[0].TxCount)
}

func TestRecordReceiveRejectsStaffAndBadQuantities(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordReceive(ctx, f.staff, ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(1)}}})
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = f.svc.RecordReceive(ctx, f.owner, ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.Zero}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.RecordReceive(ctx, f.owner, ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromFloat(0.3)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.RecordReceive(ctx, f.owner, ReceiveInput{})
	require.ErrorIs(t, err, ErrNoLines)
	assert.Empty(t, f.repo.txs)
}

func TestRecordDeliveryMovesStockToBranch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordReceive(ctx, f.owner, ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(10)}}})
	require.NoError(t, err)
	_, err = f.svc.RecordDelivery(ctx, f.owner, DeliveryInput{
		ToLocationID: f.branch.ID,
		Lines:        []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)

	rows, err := f.svc.Levels(ctx, LevelFilter{ItemID: f.milk.ID})
	require.NoError(t, err)
	byLoc := map[uuid.UUID]Level{}
	for _, r := range rows {
		byLoc[r.LocationID] = r
	}
	assert.Equal(t, "6 pcs", byLoc[f.warehouse.ID].Display)
	assert.Equal(t, "4 pcs", byLoc[f.branch.ID].Display)
	assert.Equal(t, SeverityLow, byLoc[f.branch.ID].Severity)

	_, err = f.svc.RecordDelivery(ctx, f.owner, DeliveryInput{
		ToLocationID: f.warehouse.ID,
		Lines:        []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, masterdata.ErrNotBranch)
}

func TestDeliveryMayDriveWarehouseNegative(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordDelivery(ctx, f.owner, DeliveryInput{
		ToLocationID: f.branch.ID,
		Lines:        []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)

	rows, err := f.svc.Levels(ctx, LevelFilter{LocationType: masterdata.LocationWarehouse, ItemID: f.milk.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].OnHand.Equal(decimal.NewFromInt(-3)))
	assert.Equal(t, SeverityNegative, rows[0].Severity)
	assert.Equal(t, "-3 pcs", rows[0].Display)
}

func TestRecordAdjustment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordAdjustment(ctx, f.owner, AdjustmentInput{
		LocationID: f.branch.ID,
		Line:       Line{ItemID: f.chips.ID, Qty: decimal.NewFromInt(5), Unit: units.Pieces},
		Direction:  DirectionRemove,
	})
	require.ErrorIs(t, err, ErrReasonRequired)

	posting, err := f.svc.RecordAdjustment(ctx, f.owner, AdjustmentInput{
		LocationID: f.branch.ID,
		Line:       Line{ItemID: f.chips.ID, Qty: decimal.NewFromInt(5), Unit: units.Pieces},
		Direction:  DirectionRemove,
		Reason:     "damaged",
	})
	require.NoError(t, err)
	tx := posting.Transactions[0]
	assert.Nil(t, tx.ToLocationID)
	require.NotNil(t, tx.FromLocationID)
	assert.Equal(t, f.branch.ID, *tx.FromLocationID)
	assert.True(t, tx.Qty.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "damaged", tx.Reason)
}

func TestIdempotentPostingRejectsReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	input := ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(2)}}, RequestKey: "abc"}

	_, err := f.svc.RecordReceive(ctx, f.owner, input)
	require.NoError(t, err)
	_, err = f.svc.RecordReceive(ctx, f.owner, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, f.repo.txs, 1)
}

func TestFailedPostingReleasesRequestKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.repo.failTx = errors.New("connection reset")
	input := ReceiveInput{Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(2)}}, RequestKey: "retry-me"}

	_, err := f.svc.RecordReceive(ctx, f.owner, input)
	require.ErrorIs(t, err, shared.ErrDependency)
	assert.Equal(t, "connection reset", err.Error())
	assert.True(t, shared.Retryable(err))

	f.repo.failTx = nil
	_, err = f.svc.RecordReceive(ctx, f.owner, input)
	require.NoError(t, err)
}

func TestLowStockOrdersAscending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordReceive(ctx, f.owner, ReceiveInput{Lines: []Line{
		{ItemID: f.chips.ID, Qty: decimal.NewFromInt(1)},
		{ItemID: f.milk.ID, Qty: decimal.NewFromInt(5)},
	}})
	require.NoError(t, err)

	rows, err := f.svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, f.milk.ID, rows[0].ItemID)
	assert.Equal(t, f.chips.ID, rows[1].ItemID)
	assert.Equal(t, "1 box", rows[1].Display)
}

func TestLevelsSortByCategoryThenName(t *testing.T) {
	f := newFixture(t, nil)
	rows, err := f.svc.Levels(context.Background(), LevelFilter{LocationType: masterdata.LocationWarehouse})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Dairy", rows[0].Category)
	assert.Equal(t, "Snacks", rows[1].Category)
}

func TestOnHandAsOfIgnoresLaterEntries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RecordReceive(ctx, f.owner, ReceiveInput{ToLocationID: f.branch.ID, Lines: []Line{{ItemID: f.milk.ID, Qty: decimal.NewFromInt(7)}}})
	require.NoError(t, err)
	cutoff := time.Now().UTC()
	f.repo.txs = append(f.repo.txs, Transaction{
		ID: uuid.New(), CreatedAt: cutoff.Add(time.Hour), Type: TransactionReceive, ItemID: f.milk.ID,
		ToLocationID: &f.branch.ID, Qty: decimal.NewFromInt(100),
	})

	levels, err := f.svc.OnHandAsOf(ctx, f.branch.ID, cutoff)
	require.NoError(t, err)
	assert.True(t, levels[f.milk.ID].Equal(decimal.NewFromInt(7)))
}

func TestHistoryRejectsInvertedRange(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	_, err := f.svc.History(context.Background(), HistoryFilter{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)
}
