package planner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/platform/db"
)

// ErrRecordNotFound is returned by the repository when a row is absent.
var ErrRecordNotFound = errors.New("planner: record not found")

const uniqueDraftPerWeek = "delivery_plans_one_draft_per_week"

// Repository persists delivery plans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockItem(ctx context.Context, planID, itemID uuid.UUID) error
	GetPlanForShare(ctx context.Context, id uuid.UUID) (Plan, error)
	GetPlanForUpdate(ctx context.Context, id uuid.UUID) (Plan, error)
	GetPlanItem(ctx context.Context, id uuid.UUID) (PlanItem, error)
	ItemLines(ctx context.Context, planID, itemID uuid.UUID) ([]PlanItem, error)
	WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error)
	UpsertItem(ctx context.Context, item PlanItem) (PlanItem, error)
	UpdateItemQty(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (PlanItem, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
	CountItems(ctx context.Context, planID uuid.UUID) (int, error)
	SetStatus(ctx context.Context, planID uuid.UUID, status PlanStatus) error
	InsertDraft(ctx context.Context, plan Plan) (Plan, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction so that reads made after an
// advisory lock observe writes committed by the previous holder.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.Locking, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const (
	planColumns = `id, week_of, status, created_by, created_at`
	itemColumns = `id, plan_id, item_id, to_location_id, qty`
)

func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.WeekOf, &p.Status, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrRecordNotFound
	}
	return p, err
}

func scanItem(row pgx.Row) (PlanItem, error) {
	var it PlanItem
	err := row.Scan(&it.ID, &it.PlanID, &it.ItemID, &it.ToLocationID, &it.Qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlanItem{}, ErrRecordNotFound
	}
	return it, err
}

func collectItems(rows pgx.Rows, err error) ([]PlanItem, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PlanItem, error) {
		return scanItem(row)
	})
}

// GetPlan fetches a plan.
func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM delivery_plans WHERE id = $1`, id))
}

// ListItems lists the lines of a plan.
func (r *Repository) ListItems(ctx context.Context, planID uuid.UUID) ([]PlanItem, error) {
	return collectItems(r.pool.Query(ctx, `SELECT `+itemColumns+` FROM delivery_plan_items WHERE plan_id = $1 ORDER BY item_id, to_location_id`, planID))
}

// DraftForWeek fetches the draft plan of a week.
func (r *Repository) DraftForWeek(ctx context.Context, weekOf time.Time) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM delivery_plans WHERE week_of = $1 AND status = 'draft'`, weekOf))
}

// LatestFinalized fetches the finalized plan with the latest week.
func (r *Repository) LatestFinalized(ctx context.Context) (Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM delivery_plans
WHERE status = 'finalized' ORDER BY week_of DESC, created_at DESC LIMIT 1`))
}

func (r *txRepo) LockItem(ctx context.Context, planID, itemID uuid.UUID) error {
	return db.AdvisoryXactLock(ctx, r.tx, db.LockKey("delivery_plan_items", planID.String(), itemID.String()))
}

func (r *txRepo) GetPlanForShare(ctx context.Context, id uuid.UUID) (Plan, error) {
	return scanPlan(r.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM delivery_plans WHERE id = $1 FOR SHARE`, id))
}

func (r *txRepo) GetPlanForUpdate(ctx context.Context, id uuid.UUID) (Plan, error) {
	return scanPlan(r.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM delivery_plans WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) GetPlanItem(ctx context.Context, id uuid.UUID) (PlanItem, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM delivery_plan_items WHERE id = $1`, id))
}

func (r *txRepo) ItemLines(ctx context.Context, planID, itemID uuid.UUID) ([]PlanItem, error) {
	return collectItems(r.tx.Query(ctx, `SELECT `+itemColumns+` FROM delivery_plan_items WHERE plan_id = $1 AND item_id = $2`, planID, itemID))
}

func (r *txRepo) WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(v.on_hand), 0)
FROM inventory_levels v
JOIN locations l ON l.id = v.location_id
WHERE l.type = 'warehouse' AND v.item_id = $1`, itemID).Scan(&qty)
	return qty, err
}

func (r *txRepo) UpsertItem(ctx context.Context, item PlanItem) (PlanItem, error) {
	return scanItem(r.tx.QueryRow(ctx, `INSERT INTO delivery_plan_items (plan_id, item_id, to_location_id, qty)
VALUES ($1, $2, $3, $4)
ON CONFLICT (plan_id, item_id, to_location_id) DO UPDATE SET qty = EXCLUDED.qty
RETURNING `+itemColumns, item.PlanID, item.ItemID, item.ToLocationID, item.Qty))
}

func (r *txRepo) UpdateItemQty(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (PlanItem, error) {
	return scanItem(r.tx.QueryRow(ctx, `UPDATE delivery_plan_items SET qty = $2 WHERE id = $1 RETURNING `+itemColumns, id, qty))
}

func (r *txRepo) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM delivery_plan_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *txRepo) CountItems(ctx context.Context, planID uuid.UUID) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_plan_items WHERE plan_id = $1`, planID).Scan(&n)
	return n, err
}

func (r *txRepo) SetStatus(ctx context.Context, planID uuid.UUID, status PlanStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE delivery_plans SET status = $2 WHERE id = $1`, planID, string(status))
	if db.IsUniqueViolation(err, uniqueDraftPerWeek) {
		return ErrDraftExists
	}
	return err
}

func (r *txRepo) InsertDraft(ctx context.Context, plan Plan) (Plan, error) {
	p, err := scanPlan(r.tx.QueryRow(ctx, `INSERT INTO delivery_plans (week_of, status, created_by)
VALUES ($1, 'draft', $2) RETURNING `+planColumns, plan.WeekOf, plan.CreatedBy))
	if db.IsUniqueViolation(err, uniqueDraftPerWeek) {
		return Plan{}, ErrDraftExists
	}
	return p, err
}
