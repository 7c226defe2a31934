package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already-open transaction so another module can
// post movements inside it.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, name, name_key, category, unit, available_qty, cost_per_unit, price_per_unit, reorder_level, active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.NameKey, &item.Category, &item.Unit, &item.AvailableQty,
		&item.CostPerUnit, &item.PricePerUnit, &item.ReorderLevel, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetItem fetches one item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, id)
	return scanItem(row)
}

// FindItemByNameKey resolves an item by its folded name.
func (r *Repository) FindItemByNameKey(ctx context.Context, nameKey string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE name_key=$1 AND active`, nameKey)
	return scanItem(row)
}

// ListItems lists items, optionally active only, ordered by name.
func (r *Repository) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE ($1 = false OR active) ORDER BY name ASC`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListMovements lists movement history for an item, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, movement_type, qty_delta, qty_before, qty_after, unit_cost, reference_type, reference_id, created_by, created_at, notes
FROM inventory_movements
WHERE item_id=$1 AND created_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $4`, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var mtype string
		if err := rows.Scan(&m.ID, &m.ItemID, &mtype, &m.QtyDelta, &m.QtyBefore, &m.QtyAfter, &m.UnitCost,
			&m.RefType, &m.RefID, &m.CreatedBy, &m.CreatedAt, &m.Notes); err != nil {
			return nil, err
		}
		m.Type = MovementType(mtype)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, id)
	return scanItem(row)
}

func (r *txRepository) UpdateItemQuantity(ctx context.Context, id int64, qty, costPerUnit float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET available_qty=$2, cost_per_unit=$3, updated_at=NOW() WHERE id=$1`, id, qty, costPerUnit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements
(item_id, movement_type, qty_delta, qty_before, qty_after, unit_cost, reference_type, reference_id, created_by, created_at, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		m.ItemID, string(m.Type), m.QtyDelta, m.QtyBefore, m.QtyAfter, m.UnitCost,
		m.RefType, m.RefID, m.CreatedBy, m.CreatedAt, m.Notes).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
