package masterdata

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound is returned by the repository when a row is absent.
var ErrRecordNotFound = errors.New("masterdata: record not found")

// repo implements Repository on PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

const itemColumns = `id, sku, name, category, base_unit, pieces_per_box, loose_unit_label,
	reorder_point, target_stock, is_active, is_favorite, created_at, updated_at`

func (r *repo) ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error) {
	query := `SELECT id, name, type, is_active FROM locations WHERE ($1::text = '' OR type = $1::text) AND (NOT $2::boolean OR is_active) ORDER BY name`
	rows, err := r.db.Query(ctx, query, string(filter.Type), filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.IsActive); err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

func (r *repo) GetLocation(ctx context.Context, id uuid.UUID) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, `SELECT id, name, type, is_active FROM locations WHERE id = $1`, id).Scan(&l.ID, &l.Name, &l.Type, &l.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrRecordNotFound
	}
	return l, err
}

func (r *repo) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, "category = $"+strconv.Itoa(len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		clauses = append(clauses, "(name ILIKE $"+strconv.Itoa(len(args))+" OR sku ILIKE $"+strconv.Itoa(len(args))+")")
	}
	query := `SELECT ` + itemColumns + ` FROM items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY category NULLS LAST, name"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repo) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrRecordNotFound
	}
	return item, err
}

func (r *repo) CreateItem(ctx context.Context, item Item) (Item, error) {
	query := `INSERT INTO items (sku, name, category, base_unit, pieces_per_box, loose_unit_label, reorder_point, target_stock, is_active)
	          VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	          RETURNING ` + itemColumns
	return scanItem(r.db.QueryRow(ctx, query, item.SKU, item.Name, item.Category, item.BaseUnit, item.PiecesPerBox,
		item.LooseUnitLabel, item.ReorderPoint, item.TargetStock, item.IsActive))
}

func (r *repo) UpdateItem(ctx context.Context, item Item) (Item, error) {
	query := `UPDATE items SET sku = $2, name = $3, category = NULLIF($4, ''), base_unit = $5, pieces_per_box = $6,
	          loose_unit_label = $7, reorder_point = $8, target_stock = $9, updated_at = NOW()
	          WHERE id = $1
	          RETURNING ` + itemColumns
	updated, err := scanItem(r.db.QueryRow(ctx, query, item.ID, item.SKU, item.Name, item.Category, item.BaseUnit,
		item.PiecesPerBox, item.LooseUnitLabel, item.ReorderPoint, item.TargetStock))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrRecordNotFound
	}
	return updated, err
}

func (r *repo) SetItemActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setFlag(ctx, `UPDATE items SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (r *repo) SetItemFavorite(ctx context.Context, id uuid.UUID, favorite bool) error {
	return r.setFlag(ctx, `UPDATE items SET is_favorite = $2, updated_at = NOW() WHERE id = $1`, id, favorite)
}

func (r *repo) setFlag(ctx context.Context, query string, id uuid.UUID, value bool) error {
	tag, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		it       Item
		category *string
	)
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &category, &it.BaseUnit, &it.PiecesPerBox, &it.LooseUnitLabel,
		&it.ReorderPoint, &it.TargetStock, &it.IsActive, &it.IsFavorite, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	if category != nil {
		it.Category = *category
	}
	return it, nil
}
