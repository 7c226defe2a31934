package stocktake

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/platform/db"
)

// Repository persists stock-take data in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stocktake repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const stockTakeColumns = `id, reference_no, title, description, location, status, initiated_by, total_variance_value, initiated_at, started_at, completed_at, cancelled_at`

func scanStockTake(row pgx.Row) (StockTake, error) {
	var st StockTake
	var status string
	err := row.Scan(&st.ID, &st.ReferenceNo, &st.Title, &st.Description, &st.Location, &status,
		&st.InitiatedBy, &st.TotalVarianceValue, &st.InitiatedAt, &st.StartedAt, &st.CompletedAt, &st.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockTake{}, ErrNotFound
		}
		return StockTake{}, err
	}
	st.Status = Status(status)
	return st, nil
}

// GetStockTake fetches one stock-take by id.
func (r *Repository) GetStockTake(ctx context.Context, id int64) (StockTake, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes WHERE id=$1`, id)
	return scanStockTake(row)
}

// ListStockTakes enumerates sessions, newest first.
func (r *Repository) ListStockTakes(ctx context.Context, filter ListFilter) ([]StockTake, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes
WHERE ($1 = '' OR status = $1)
ORDER BY initiated_at DESC, id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	takes := []StockTake{}
	for rows.Next() {
		st, err := scanStockTake(rows)
		if err != nil {
			return nil, err
		}
		takes = append(takes, st)
	}
	return takes, rows.Err()
}

const itemColumns = `id, stock_take_id, item_id, item_name, unit, system_qty, unit_cost, physical_qty, variance_qty, variance_value, counted_by, counted_at, notes`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.StockTakeID, &item.ItemID, &item.ItemName, &item.Unit,
		&item.SystemQty, &item.UnitCost, &item.PhysicalQty, &item.VarianceQty, &item.VarianceValue,
		&item.CountedBy, &item.CountedAt, &item.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// ListItems lists the lines of one stock-take in item-name order.
func (r *Repository) ListItems(ctx context.Context, stockTakeID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_take_items
WHERE stock_take_id=$1 ORDER BY item_name ASC, id ASC`, stockTakeID)
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

func (r *txRepository) InsertStockTake(ctx context.Context, st StockTake) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_takes
(reference_no, title, description, location, status, initiated_by, total_variance_value, initiated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
RETURNING id`,
		st.ReferenceNo, st.Title, st.Description, st.Location, string(st.Status), st.InitiatedBy, st.InitiatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetStockTakeForUpdate(ctx context.Context, id int64) (StockTake, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes WHERE id=$1 FOR UPDATE`, id)
	return scanStockTake(row)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var column string
	switch status {
	case StatusInProgress:
		column = "started_at"
	case StatusCompleted:
		column = "completed_at"
	case StatusCancelled:
		column = "cancelled_at"
	default:
		return ErrInvalidState
	}
	tag, err := r.tx.Exec(ctx, `UPDATE stock_takes SET status=$2, `+column+`=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SnapshotItems copies every active inventory item's quantity and cost into
// stock_take_items. Runs inside the same transaction as the status flip so
// the snapshot matches the moment counting begins.
func (r *txRepository) SnapshotItems(ctx context.Context, stockTakeID int64) (int, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO stock_take_items
(stock_take_id, item_id, item_name, unit, system_qty, unit_cost, variance_qty, variance_value, notes)
SELECT $1, id, name, unit, available_qty, cost_per_unit, 0, 0, ''
FROM inventory_items
WHERE active
ORDER BY name ASC`, stockTakeID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetItemForUpdate locks the line and share-locks the parent session.
// Complete and Cancel take the parent FOR UPDATE, so a count in flight
// blocks a status flip and a committed flip is visible to the count.
func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, StockTake, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_take_items WHERE id=$1 FOR UPDATE`, itemID)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, StockTake{}, err
	}
	parentRow := r.tx.QueryRow(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes WHERE id=$1 FOR SHARE`, item.StockTakeID)
	parent, err := scanStockTake(parentRow)
	if err != nil {
		return Item{}, StockTake{}, err
	}
	return item, parent, nil
}

func (r *txRepository) UpdateItemCount(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_take_items
SET physical_qty=$2, variance_qty=$3, variance_value=$4, counted_by=$5, counted_at=$6, notes=$7
WHERE id=$1`,
		item.ID, item.PhysicalQty, item.VarianceQty, item.VarianceValue, item.CountedBy, item.CountedAt, item.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SumCountedVariance(ctx context.Context, stockTakeID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(variance_value), 0)
FROM stock_take_items WHERE stock_take_id=$1 AND physical_qty IS NOT NULL`, stockTakeID).Scan(&total)
	return total, err
}

func (r *txRepository) UpdateTotalVariance(ctx context.Context, id int64, total float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_takes SET total_variance_value=$2 WHERE id=$1`, id, total)
	return err
}
