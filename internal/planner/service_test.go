package planner

import (
	"context"
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
	locations map[uuid.UUID]masterdata.Location
	items     map[uuid.UUID]masterdata.Item
}

func (c *memoryCatalog) Branch(_ context.Context, id uuid.UUID) (masterdata.Location, error) {
	loc, ok := c.locations[id]
	if !ok {
		return masterdata.Location{}, shared.NotFound("location")
	}
	if !loc.IsBranch() {
		return masterdata.Location{}, masterdata.ErrNotBranch
	}
	return loc, nil
}

func (c *memoryCatalog) Item(_ context.Context, id uuid.UUID) (masterdata.Item, error) {
	it, ok := c.items[id]
	if !ok {
		return masterdata.Item{}, shared.NotFound("item")
	}
	return it, nil
}

type memoryRepo struct {
	mu     sync.Mutex
	plans  map[uuid.UUID]Plan
	items  map[uuid.UUID]PlanItem
	onHand map[uuid.UUID]decimal.Decimal
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		plans:  make(map[uuid.UUID]Plan),
		items:  make(map[uuid.UUID]PlanItem),
		onHand: make(map[uuid.UUID]decimal.Decimal),
	}
}

// WithTx holds the repo mutex for the whole callback, which serialises every
// writer the way the advisory lock does in PostgreSQL.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, plans: make(map[uuid.UUID]Plan), items: make(map[uuid.UUID]PlanItem)}
	for k, v := range r.plans {
		tx.plans[k] = v
	}
	for k, v := range r.items {
		tx.items[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.plans, r.items = tx.plans, tx.items
	return nil
}

func (r *memoryRepo) GetPlan(_ context.Context, id uuid.UUID) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrRecordNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListItems(_ context.Context, planID uuid.UUID) ([]PlanItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PlanItem
	for _, it := range r.items {
		if it.PlanID == planID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *memoryRepo) DraftForWeek(_ context.Context, weekOf time.Time) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.Status == StatusDraft && p.WeekOf.Equal(weekOf) {
			return p, nil
		}
	}
	return Plan{}, ErrRecordNotFound
}

func (r *memoryRepo) LatestFinalized(context.Context) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Plan
	for _, p := range r.plans {
		if p.Status != StatusFinalized {
			continue
		}
		if latest == nil || p.WeekOf.After(latest.WeekOf) {
			p := p
			latest = &p
		}
	}
	if latest == nil {
		return Plan{}, ErrRecordNotFound
	}
	return *latest, nil
}

func (r *memoryRepo) WarehouseOnHand(_ context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	return r.onHand[itemID], nil
}

type memoryTx struct {
	repo  *memoryRepo
	plans map[uuid.UUID]Plan
	items map[uuid.UUID]PlanItem
}

func (t *memoryTx) LockItem(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (t *memoryTx) GetPlanForShare(_ context.Context, id uuid.UUID) (Plan, error) {
	p, ok := t.plans[id]
	if !ok {
		return Plan{}, ErrRecordNotFound
	}
	return p, nil
}

func (t *memoryTx) GetPlanForUpdate(ctx context.Context, id uuid.UUID) (Plan, error) {
	return t.GetPlanForShare(ctx, id)
}

func (t *memoryTx) GetPlanItem(_ context.Context, id uuid.UUID) (PlanItem, error) {
	it, ok := t.items[id]
	if !ok {
		return PlanItem{}, ErrRecordNotFound
	}
	return it, nil
}

func (t *memoryTx) ItemLines(_ context.Context, planID, itemID uuid.UUID) ([]PlanItem, error) {
	var out []PlanItem
	for _, it := range t.items {
		if it.PlanID == planID && it.ItemID == itemID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (t *memoryTx) WarehouseOnHand(_ context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	return t.repo.onHand[itemID], nil
}

func (t *memoryTx) UpsertItem(_ context.Context, item PlanItem) (PlanItem, error) {
	for id, it := range t.items {
		if it.PlanID == item.PlanID && it.ItemID == item.ItemID && it.ToLocationID == item.ToLocationID {
			it.Qty = item.Qty
			t.items[id] = it
			return it, nil
		}
	}
	item.ID = uuid.New()
	t.items[item.ID] = item
	return item, nil
}

func (t *memoryTx) UpdateItemQty(_ context.Context, id uuid.UUID, qty decimal.Decimal) (PlanItem, error) {
	it, ok := t.items[id]
	if !ok {
		return PlanItem{}, ErrRecordNotFound
	}
	it.Qty = qty
	t.items[id] = it
	return it, nil
}

func (t *memoryTx) DeleteItem(_ context.Context, id uuid.UUID) error {
	if _, ok := t.items[id]; !ok {
		return ErrRecordNotFound
	}
	delete(t.items, id)
	return nil
}

func (t *memoryTx) CountItems(_ context.Context, planID uuid.UUID) (int, error) {
	n := 0
	for _, it := range t.items {
		if it.PlanID == planID {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) SetStatus(_ context.Context, planID uuid.UUID, status PlanStatus) error {
	p := t.plans[planID]
	if status == StatusDraft {
		for id, other := range t.plans {
			if id != planID && other.Status == StatusDraft && other.WeekOf.Equal(p.WeekOf) {
				return ErrDraftExists
			}
		}
	}
	p.Status = status
	t.plans[planID] = p
	return nil
}

func (t *memoryTx) InsertDraft(_ context.Context, plan Plan) (Plan, error) {
	for _, p := range t.plans {
		if p.Status == StatusDraft && p.WeekOf.Equal(plan.WeekOf) {
			return Plan{}, ErrDraftExists
		}
	}
	plan.ID = uuid.New()
	plan.CreatedAt = time.Now().UTC()
	t.plans[plan.ID] = plan
	return plan, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (m *countingMetrics) AllocationRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reasons == nil {
		m.reasons = make(map[string]int)
	}
	m.reasons[reason]++
}

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	metrics *countingMetrics
	item    masterdata.Item
	boxed   masterdata.Item
	x, y    masterdata.Location
	wh      masterdata.Location
	owner   shared.Actor
	manager shared.Actor
	staff   shared.Actor
	week    time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemoryRepo(),
		metrics: &countingMetrics{},
		item:    masterdata.Item{ID: uuid.New(), Name: "Milk", BaseUnit: units.Pieces, PiecesPerBox: 1, IsActive: true},
		boxed:   masterdata.Item{ID: uuid.New(), Name: "Chips", BaseUnit: units.Boxes, PiecesPerBox: 12, IsActive: true},
		x:       masterdata.Location{ID: uuid.New(), Name: "X", Type: masterdata.LocationBranch, IsActive: true},
		y:       masterdata.Location{ID: uuid.New(), Name: "Y", Type: masterdata.LocationBranch, IsActive: true},
		wh:      masterdata.Location{ID: uuid.New(), Name: "Central", Type: masterdata.LocationWarehouse, IsActive: true},
		owner:   shared.Actor{ID: uuid.New(), Role: shared.RoleOwner},
		manager: shared.Actor{ID: uuid.New(), Role: shared.RoleManager},
		staff:   shared.Actor{ID: uuid.New(), Role: shared.RoleStaff},
		week:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	f.repo.onHand[f.item.ID] = decimal.NewFromInt(100)
	f.repo.onHand[f.boxed.ID] = decimal.NewFromInt(30)
	catalog := &memoryCatalog{
		locations: map[uuid.UUID]masterdata.Location{f.x.ID: f.x, f.y.ID: f.y, f.wh.ID: f.wh},
		items:     map[uuid.UUID]masterdata.Item{f.item.ID: f.item, f.boxed.ID: f.boxed},
	}
	f.svc = NewService(f.repo, catalog, f.repo, nil, f.metrics, cfg, nil)
	return f
}

func (f *fixture) draft(t *testing.T) Plan {
	t.Helper()
	pw, err := f.svc.GetOrCreateDraftPlan(context.Background(), f.manager, f.week)
	require.NoError(t, err)
	return pw.Plan
}

func (f *fixture) add(plan Plan, branch masterdata.Location, qty int64) (PlanItem, error) {
	return f.svc.AddPlanItem(context.Background(), f.manager, AddItemInput{
		PlanID: plan.ID, ItemID: f.item.ID, ToLocationID: branch.ID, Qty: decimal.NewFromInt(qty),
	})
}

func TestCeilingRule(t *testing.T) {
	x, y := uuid.New(), uuid.New()
	item := uuid.New()
	lines := []PlanItem{
		{ItemID: item, ToLocationID: x, Qty: decimal.NewFromInt(60)},
		{ItemID: uuid.New(), ToLocationID: y, Qty: decimal.NewFromInt(500)},
	}
	hundred := decimal.NewFromInt(100)

	cases := []struct {
		name string
		to   uuid.UUID
		qty  int64
		ok   bool
	}{
		{"other branch over ceiling", y, 50, false},
		{"other branch at ceiling", y, 40, true},
		{"replacing own line ignores old qty", x, 100, true},
		{"replacing own line over ceiling", x, 101, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			others := OtherBranchesTotal(lines, item, tc.to)
			assert.Equal(t, tc.ok, WithinCeiling(others, decimal.NewFromInt(tc.qty), hundred))
		})
	}
}

func TestGetOrCreateDraftPlanIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	first := f.draft(t)
	second := f.draft(t)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusDraft, first.Status)
	assert.Len(t, f.repo.plans, 1)

	_, err := f.svc.GetOrCreateDraftPlan(context.Background(), f.manager, f.week.AddDate(0, 0, 2))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddPlanItemEnforcesWarehouseCeiling(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)

	_, err := f.add(plan, f.x, 60)
	require.NoError(t, err)

	_, err = f.add(plan, f.y, 50)
	require.ErrorIs(t, err, ErrExceedsWarehouseStock)
	assert.Equal(t, shared.KindStateConflict, shared.KindOf(err))
	assert.False(t, shared.Retryable(err))
	assert.Contains(t, shared.UserMessage(err), "Exceeds available warehouse stock")

	_, err = f.add(plan, f.y, 40)
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.reasons[ReasonExceedsStock])
}

func TestAddPlanItemUpsertsPerBranch(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)

	first, err := f.add(plan, f.x, 60)
	require.NoError(t, err)
	second, err := f.add(plan, f.x, 90)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Qty.Equal(decimal.NewFromInt(90)))
	assert.Len(t, f.repo.items, 1)
}

func TestAddPlanItemConvertsBoxes(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	ctx := context.Background()

	line, err := f.svc.AddPlanItem(ctx, f.manager, AddItemInput{
		PlanID: plan.ID, ItemID: f.boxed.ID, ToLocationID: f.x.ID, Qty: decimal.NewFromFloat(2.5), Unit: units.Boxes,
	})
	require.NoError(t, err)
	assert.True(t, line.Qty.Equal(decimal.NewFromInt(30)))

	_, err = f.svc.AddPlanItem(ctx, f.manager, AddItemInput{
		PlanID: plan.ID, ItemID: f.boxed.ID, ToLocationID: f.y.ID, Qty: decimal.NewFromFloat(0.5), Unit: units.Boxes,
	})
	require.ErrorIs(t, err, ErrExceedsWarehouseStock)
	assert.Contains(t, err.Error(), "2 boxes + 6 pcs on hand")
}

func TestAddPlanItemRejections(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	ctx := context.Background()

	_, err := f.add(plan, f.x, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.add(plan, f.wh, 1)
	require.ErrorIs(t, err, masterdata.ErrNotBranch)

	_, err = f.svc.AddPlanItem(ctx, f.staff, AddItemInput{PlanID: plan.ID, ItemID: f.item.ID, ToLocationID: f.x.ID, Qty: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = f.add(Plan{ID: uuid.New()}, f.x, 1)
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestConcurrentAddsNeverOverAllocate(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	branches := make([]masterdata.Location, 10)
	catalog := f.svc.catalog.(*memoryCatalog)
	for i := range branches {
		branches[i] = masterdata.Location{ID: uuid.New(), Name: "B", Type: masterdata.LocationBranch, IsActive: true}
		catalog.locations[branches[i].ID] = branches[i]
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for _, b := range branches {
		wg.Add(1)
		go func(b masterdata.Location) {
			defer wg.Done()
			if _, err := f.add(plan, b, 30); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	total := decimal.Zero
	for _, it := range f.repo.items {
		total = total.Add(it.Qty)
	}
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestUpdatePlanItem(t *testing.T) {
	f := newFixture(t, Config{EnforceCeilingOnUpdate: true})
	plan := f.draft(t)
	ctx := context.Background()
	_, err := f.add(plan, f.x, 60)
	require.NoError(t, err)
	line, err := f.add(plan, f.y, 10)
	require.NoError(t, err)

	_, err = f.svc.UpdatePlanItem(ctx, f.manager, line.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, "Quantity must be greater than 0", err.Error())

	_, err = f.svc.UpdatePlanItem(ctx, f.manager, line.ID, decimal.NewFromInt(41))
	require.ErrorIs(t, err, ErrExceedsWarehouseStock)

	updated, err := f.svc.UpdatePlanItem(ctx, f.manager, line.ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.True(t, updated.Qty.Equal(decimal.NewFromInt(40)))

	_, err = f.svc.UpdatePlanItem(ctx, f.manager, uuid.New(), decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrPlanItemNotFound)
}

func TestUpdatePlanItemWithoutCeiling(t *testing.T) {
	f := newFixture(t, Config{EnforceCeilingOnUpdate: false})
	plan := f.draft(t)
	_, err := f.add(plan, f.x, 60)
	require.NoError(t, err)
	line, err := f.add(plan, f.y, 10)
	require.NoError(t, err)

	updated, err := f.svc.UpdatePlanItem(context.Background(), f.manager, line.ID, decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.True(t, updated.Qty.Equal(decimal.NewFromInt(80)))
}

func TestFinalizeAndRevertLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.FinalizePlan(ctx, f.manager, plan.ID), ErrEmptyPlan)

	line, err := f.add(plan, f.x, 5)
	require.NoError(t, err)
	require.NoError(t, f.svc.FinalizePlan(ctx, f.manager, plan.ID))
	require.ErrorIs(t, f.svc.FinalizePlan(ctx, f.manager, plan.ID), ErrAlreadyFinalized)

	_, err = f.add(plan, f.y, 1)
	require.ErrorIs(t, err, ErrPlanFinalized)
	require.ErrorIs(t, f.svc.RemovePlanItem(ctx, f.manager, line.ID), ErrPlanFinalized)
	_, err = f.svc.UpdatePlanItem(ctx, f.manager, line.ID, decimal.NewFromInt(2))
	require.ErrorIs(t, err, ErrPlanFinalized)

	err = f.svc.RevertPlanToDraft(ctx, f.manager, plan.ID)
	require.ErrorIs(t, err, ErrOwnerOnly)
	assert.Equal(t, "Only owners can revert finalized plans", shared.UserMessage(err))

	require.NoError(t, f.svc.RevertPlanToDraft(ctx, f.owner, plan.ID))
	require.ErrorIs(t, f.svc.RevertPlanToDraft(ctx, f.owner, plan.ID), ErrNotFinalized)

	require.NoError(t, f.svc.RemovePlanItem(ctx, f.manager, line.ID))
	assert.Empty(t, f.repo.items)
}

func TestRevertRefusesSecondDraft(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	ctx := context.Background()
	_, err := f.add(plan, f.x, 5)
	require.NoError(t, err)
	require.NoError(t, f.svc.FinalizePlan(ctx, f.manager, plan.ID))

	next := f.draft(t)
	assert.NotEqual(t, plan.ID, next.ID)
	require.ErrorIs(t, f.svc.RevertPlanToDraft(ctx, f.owner, plan.ID), ErrDraftExists)
}

func TestLatestFinalizedForBranch(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	items, err := f.svc.LatestFinalizedForBranch(ctx, f.staff, f.x.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	plan := f.draft(t)
	_, err = f.add(plan, f.x, 5)
	require.NoError(t, err)
	_, err = f.add(plan, f.y, 7)
	require.NoError(t, err)
	require.NoError(t, f.svc.FinalizePlan(ctx, f.manager, plan.ID))

	items, err = f.svc.LatestFinalizedForBranch(ctx, f.staff, f.x.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Qty.Equal(decimal.NewFromInt(5)))
}

func TestAllocationSummary(t *testing.T) {
	f := newFixture(t, Config{})
	plan := f.draft(t)
	_, err := f.add(plan, f.x, 60)
	require.NoError(t, err)
	_, err = f.add(plan, f.y, 15)
	require.NoError(t, err)

	rows, err := f.svc.Allocation(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Planned.Equal(decimal.NewFromInt(75)))
	assert.True(t, rows[0].Remaining.Equal(decimal.NewFromInt(25)))
	assert.True(t, rows[0].ByBranch[f.y.ID].Equal(decimal.NewFromInt(15)))
}
