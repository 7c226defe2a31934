package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// StockTakeReminder flags counting sessions that started but never finished.
// A session left in progress keeps its snapshot frozen while real stock
// drifts, so every day it stays open the eventual variance gets noisier.
type StockTakeReminder struct {
	pool   *pgxpool.Pool
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewStockTakeReminder constructs the reminder sweep.
func NewStockTakeReminder(pool *pgxpool.Pool, audit *shared.AuditLogger, logger *slog.Logger) *StockTakeReminder {
	return &StockTakeReminder{pool: pool, audit: audit, logger: logger}
}

// Handle processes TaskStockTakeReminder tasks.
func (s *StockTakeReminder) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockTakeReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	staleAfter := payload.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-staleAfter)

	rows, err := s.pool.Query(ctx, `SELECT id, reference_no, title, started_at
FROM stock_takes
WHERE status = 'in_progress' AND started_at < $1
ORDER BY started_at ASC`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        int64
			refNo     string
			title     string
			startedAt time.Time
		)
		if err := rows.Scan(&id, &refNo, &title, &startedAt); err != nil {
			return err
		}
		count++
		s.logger.Warn("stock take left in progress",
			slog.Int64("stock_take_id", id),
			slog.String("reference_no", refNo),
			slog.Time("started_at", startedAt))
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   "stocktake:stale",
				Entity:   "stock_take",
				EntityID: itoa(int(id)),
				Meta: map[string]any{
					"reference_no": refNo,
					"title":        title,
					"started_at":   startedAt,
				},
			})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.logger.Info("stock take reminder done", slog.Int("flagged", count))
	return nil
}
