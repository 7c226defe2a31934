package adjustments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/platform/db"
)

// Repository persists adjustments in PostgreSQL.
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

// Ledger exposes the same transaction for movement posting.
func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("adjustments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const adjustmentColumns = `id, reference_no, item_id, item_name, adjustment_type, quantity_before, quantity_after, quantity_delta, unit_cost, reason, source_type, source_ref, status, requested_by, requested_at, reviewed_by, reviewed_at, review_note`

func scanAdjustment(row pgx.Row) (StockAdjustment, error) {
	var adj StockAdjustment
	var atype, source, status string
	err := row.Scan(&adj.ID, &adj.ReferenceNo, &adj.ItemID, &adj.ItemName, &atype,
		&adj.QuantityBefore, &adj.QuantityAfter, &adj.QuantityDelta, &adj.UnitCost,
		&adj.Reason, &source, &adj.SourceRef, &status,
		&adj.RequestedBy, &adj.RequestedAt, &adj.ReviewedBy, &adj.ReviewedAt, &adj.ReviewNote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockAdjustment{}, ErrNotFound
		}
		return StockAdjustment{}, err
	}
	adj.AdjustmentType = Type(atype)
	adj.SourceType = SourceType(source)
	adj.Status = Status(status)
	return adj, nil
}

// Get fetches one adjustment by id.
func (r *Repository) Get(ctx context.Context, id int64) (StockAdjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1`, id)
	return scanAdjustment(row)
}

// GetByReference fetches one adjustment by reference number.
func (r *Repository) GetByReference(ctx context.Context, refNo string) (StockAdjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE reference_no=$1`, refNo)
	return scanAdjustment(row)
}

// List enumerates adjustments, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments
WHERE ($1 = '' OR status = $1)
  AND ($2 = 0 OR item_id = $2)
  AND ($3 = '' OR source_ref = $3)
ORDER BY requested_at DESC, id DESC`, string(filter.Status), filter.ItemID, filter.SourceRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adjustments := []StockAdjustment{}
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, adj StockAdjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments
(reference_no, item_id, item_name, adjustment_type, quantity_before, quantity_after, quantity_delta, unit_cost, reason, source_type, source_ref, status, requested_by, requested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
		adj.ReferenceNo, adj.ItemID, adj.ItemName, string(adj.AdjustmentType),
		adj.QuantityBefore, adj.QuantityAfter, adj.QuantityDelta, adj.UnitCost,
		adj.Reason, string(adj.SourceType), adj.SourceRef, string(adj.Status),
		adj.RequestedBy, adj.RequestedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (StockAdjustment, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id=$1 FOR UPDATE`, id)
	return scanAdjustment(row)
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, reviewedBy *int64, note string, at *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_adjustments
SET status=$2, reviewed_by=$3, reviewed_at=$4, review_note=$5
WHERE id=$1`, id, string(status), reviewedBy, at, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
