package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// LowStockScanner sweeps active items sitting at or below their reorder
// level and leaves a trace in the audit log so the morning shift sees what
// to reorder.
type LowStockScanner struct {
	pool   *pgxpool.Pool
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewLowStockScanner constructs the scanner.
func NewLowStockScanner(pool *pgxpool.Pool, audit *shared.AuditLogger, logger *slog.Logger) *LowStockScanner {
	return &LowStockScanner{pool: pool, audit: audit, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (s *LowStockScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name, unit, available_qty, reorder_level
FROM inventory_items
WHERE active AND reorder_level > 0 AND available_qty <= reorder_level
ORDER BY available_qty / reorder_level ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id                 int64
			name, unit         string
			available, reorder float64
		)
		if err := rows.Scan(&id, &name, &unit, &available, &reorder); err != nil {
			return err
		}
		count++
		s.logger.Warn("item under reorder level",
			slog.Int64("item_id", id),
			slog.String("name", name),
			slog.Float64("available_qty", available),
			slog.Float64("reorder_level", reorder),
			slog.String("unit", unit))
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   "inventory:low_stock",
				Entity:   "inventory_item",
				EntityID: itoa(int(id)),
				Meta: map[string]any{
					"name":          name,
					"available_qty": available,
					"reorder_level": reorder,
				},
			})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.logger.Info("low stock scan done", slog.Int("flagged", count))
	return nil
}
