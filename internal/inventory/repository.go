package inventory

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertTransactions(ctx context.Context, txs []Transaction) ([]Transaction, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.Snapshot, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *txRepo) InsertTransactions(ctx context.Context, txs []Transaction) ([]Transaction, error) {
	return InsertTransactions(ctx, r.tx, txs)
}

// Querier is satisfied by pgx.Tx and pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InsertTransactions appends entries through q. Other packages posting ledger
// rows inside their own transaction use it directly.
func InsertTransactions(ctx context.Context, q Querier, txs []Transaction) ([]Transaction, error) {
	const sql = `INSERT INTO transactions (created_by, type, item_id, from_location_id, to_location_id, qty, note, reason)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
RETURNING id, created_at`
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if err := q.QueryRow(ctx, sql, t.CreatedBy, string(t.Type), t.ItemID, t.FromLocationID, t.ToLocationID, t.Qty, t.Note, t.Reason).
			Scan(&t.ID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListLevels returns one row per active item and active location; missing
// ledger activity yields zero.
func (r *Repository) ListLevels(ctx context.Context, filter LevelFilter) ([]Level, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	where = append(where, "i.is_active", "l.is_active")
	if filter.LocationType != "" {
		add("l.type = ?", string(filter.LocationType))
	}
	if filter.LocationID != uuid.Nil {
		add("l.id = ?", filter.LocationID)
	}
	if filter.ItemID != uuid.Nil {
		add("i.id = ?", filter.ItemID)
	}
	if filter.Category != "" {
		add("i.category = ?", filter.Category)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(i.name ILIKE ? OR i.sku ILIKE ?)", "%"+s+"%")
	}
	sql := `SELECT i.id, i.sku, i.name, COALESCE(i.category, ''), i.base_unit, i.pieces_per_box,
       i.loose_unit_label, i.reorder_point, i.target_stock,
       l.id, l.name, l.type, COALESCE(v.on_hand, 0)
FROM items i
CROSS JOIN locations l
LEFT JOIN inventory_levels v ON v.item_id = i.id AND v.location_id = l.id
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY i.category NULLS LAST, i.name, l.name`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Level
	for rows.Next() {
		var lvl Level
		if err := rows.Scan(&lvl.ItemID, &lvl.SKU, &lvl.ItemName, &lvl.Category, &lvl.BaseUnit, &lvl.PiecesPerBox,
			&lvl.LooseUnitLabel, &lvl.ReorderPoint, &lvl.TargetStock,
			&lvl.LocationID, &lvl.LocationName, &lvl.LocationType, &lvl.OnHand); err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, rows.Err()
}

// WarehouseOnHand reads the warehouse row of the levels view.
func (r *Repository) WarehouseOnHand(ctx context.Context, itemID uuid.UUID) (decimal.Decimal, error) {
	const sql = `SELECT COALESCE(SUM(v.on_hand), 0)
FROM inventory_levels v
JOIN locations l ON l.id = v.location_id
WHERE l.type = 'warehouse' AND v.item_id = $1`
	var qty decimal.Decimal
	if err := r.pool.QueryRow(ctx, sql, itemID).Scan(&qty); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// ListTransactions returns ledger entries newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	where = append(where, "TRUE")
	if filter.Type != "" {
		add("type = ?", string(filter.Type))
	}
	if filter.LocationID != uuid.Nil {
		add("(from_location_id = ? OR to_location_id = ?)", filter.LocationID)
	}
	if filter.ItemID != uuid.Nil {
		add("item_id = ?", filter.ItemID)
	}
	if !filter.From.IsZero() {
		add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= ?", filter.To)
	}
	sql := `SELECT id, created_at, created_by, type, item_id, from_location_id, to_location_id, qty,
       COALESCE(note, ''), COALESCE(reason, '')
FROM transactions
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(filter.Limit)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.CreatedBy, &t.Type, &t.ItemID, &t.FromLocationID, &t.ToLocationID,
			&t.Qty, &t.Note, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
