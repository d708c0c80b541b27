package counts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/platform/db"
)

// ErrRecordNotFound is returned by the repository when a row is absent.
var ErrRecordNotFound = errors.New("counts: record not found")

const uniqueLocationWeek = "stock_counts_location_week_key"

// Repository persists stock counts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	CountExists(ctx context.Context, locationID uuid.UUID, weekOf time.Time) (bool, error)
	InsertCount(ctx context.Context, count StockCount) (StockCount, error)
	InsertItems(ctx context.Context, countID uuid.UUID, items []StockCountItem) ([]StockCountItem, error)
	DeleteItems(ctx context.Context, countID uuid.UUID) error
	UpdateCountedBy(ctx context.Context, countID uuid.UUID, countedBy string) error
	UpdateItemQty(ctx context.Context, itemRowID uuid.UUID, qty decimal.Decimal) error
	DeleteCount(ctx context.Context, countID uuid.UUID) error
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

const countColumns = `id, location_id, counted_by, submitted_by, week_of, created_at`

func scanCount(row pgx.Row) (StockCount, error) {
	var c StockCount
	err := row.Scan(&c.ID, &c.LocationID, &c.CountedBy, &c.SubmittedBy, &c.WeekOf, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockCount{}, ErrRecordNotFound
	}
	return c, err
}

// LatestCount returns the newest count for a branch and week with its rows.
func (r *Repository) LatestCount(ctx context.Context, locationID uuid.UUID, weekOf time.Time) (StockCount, error) {
	c, err := scanCount(r.pool.QueryRow(ctx, `SELECT `+countColumns+` FROM stock_counts
WHERE location_id = $1 AND week_of = $2
ORDER BY created_at DESC LIMIT 1`, locationID, weekOf))
	if err != nil {
		return StockCount{}, err
	}
	return r.withItems(ctx, c)
}

// GetCount fetches a count with its rows.
func (r *Repository) GetCount(ctx context.Context, id uuid.UUID) (StockCount, error) {
	c, err := scanCount(r.pool.QueryRow(ctx, `SELECT `+countColumns+` FROM stock_counts WHERE id = $1`, id))
	if err != nil {
		return StockCount{}, err
	}
	return r.withItems(ctx, c)
}

func (r *Repository) withItems(ctx context.Context, c StockCount) (StockCount, error) {
	items, err := r.itemsFor(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return StockCount{}, err
	}
	c.Items = items[c.ID]
	return c, nil
}

func (r *Repository) itemsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]StockCountItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stock_count_id, item_id, qty FROM stock_count_items
WHERE stock_count_id = ANY($1) ORDER BY stock_count_id, item_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]StockCountItem)
	for rows.Next() {
		var it StockCountItem
		if err := rows.Scan(&it.ID, &it.StockCountID, &it.ItemID, &it.Qty); err != nil {
			return nil, err
		}
		out[it.StockCountID] = append(out[it.StockCountID], it)
	}
	return out, rows.Err()
}

// CountsForWeeks lists counts of the given weeks, newest first, with rows.
func (r *Repository) CountsForWeeks(ctx context.Context, weeks []time.Time) ([]StockCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+countColumns+` FROM stock_counts
WHERE week_of = ANY($1::date[]) ORDER BY created_at DESC`, weeks)
	if err != nil {
		return nil, err
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockCount, error) {
		return scanCount(row)
	})
	if err != nil || len(counts) == 0 {
		return counts, err
	}
	ids := make([]uuid.UUID, 0, len(counts))
	for _, c := range counts {
		ids = append(ids, c.ID)
	}
	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range counts {
		counts[i].Items = items[counts[i].ID]
	}
	return counts, nil
}

// TransfersInto lists TRANSFER entries into the branches within [from, to).
func (r *Repository) TransfersInto(ctx context.Context, branchIDs []uuid.UUID, from, to time.Time) ([]inventory.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, created_at, created_by, type, item_id, from_location_id, to_location_id, qty
FROM transactions
WHERE type = 'TRANSFER' AND to_location_id = ANY($1) AND created_at >= $2 AND created_at < $3
ORDER BY created_at`, branchIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Transaction
	for rows.Next() {
		var t inventory.Transaction
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.CreatedBy, &t.Type, &t.ItemID, &t.FromLocationID, &t.ToLocationID, &t.Qty); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindOrphans lists headers created before the cutoff that have no rows.
func (r *Repository) FindOrphans(ctx context.Context, createdBefore time.Time) ([]StockCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+countColumns+` FROM stock_counts c
WHERE c.created_at < $1
  AND NOT EXISTS (SELECT 1 FROM stock_count_items i WHERE i.stock_count_id = c.id)
ORDER BY c.created_at`, createdBefore)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockCount, error) {
		return scanCount(row)
	})
}

func (r *txRepo) CountExists(ctx context.Context, locationID uuid.UUID, weekOf time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_counts WHERE location_id = $1 AND week_of = $2)`, locationID, weekOf).Scan(&exists)
	return exists, err
}

func (r *txRepo) InsertCount(ctx context.Context, count StockCount) (StockCount, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_counts (location_id, counted_by, submitted_by, week_of)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		count.LocationID, count.CountedBy, count.SubmittedBy, count.WeekOf).Scan(&count.ID, &count.CreatedAt)
	if db.IsUniqueViolation(err, uniqueLocationWeek) {
		return StockCount{}, ErrDuplicateCount
	}
	return count, err
}

func (r *txRepo) InsertItems(ctx context.Context, countID uuid.UUID, items []StockCountItem) ([]StockCountItem, error) {
	out := make([]StockCountItem, 0, len(items))
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO stock_count_items (stock_count_id, item_id, qty) VALUES ($1, $2, $3) RETURNING id`, countID, it.ItemID, it.Qty)
	}
	results := r.tx.SendBatch(ctx, batch)
	defer results.Close()
	for _, it := range items {
		it.StockCountID = countID
		if err := results.QueryRow().Scan(&it.ID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *txRepo) DeleteItems(ctx context.Context, countID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_count_items WHERE stock_count_id = $1`, countID)
	return err
}

func (r *txRepo) UpdateCountedBy(ctx context.Context, countID uuid.UUID, countedBy string) error {
	return expectOne(r.tx.Exec(ctx, `UPDATE stock_counts SET counted_by = $2 WHERE id = $1`, countID, countedBy))
}

func (r *txRepo) UpdateItemQty(ctx context.Context, itemRowID uuid.UUID, qty decimal.Decimal) error {
	return expectOne(r.tx.Exec(ctx, `UPDATE stock_count_items SET qty = $2 WHERE id = $1`, itemRowID, qty))
}

func (r *txRepo) DeleteCount(ctx context.Context, countID uuid.UUID) error {
	return expectOne(r.tx.Exec(ctx, `DELETE FROM stock_counts WHERE id = $1`, countID))
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
