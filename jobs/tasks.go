package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan sweeps inventory for items at or under their
	// reorder level.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskStockTakeReminder flags counting sessions left in progress.
	TaskStockTakeReminder = "stocktake:reminder"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock sweep.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// StockTakeReminderPayload carries the staleness threshold.
type StockTakeReminderPayload struct {
	ScheduledFor time.Time     `json:"scheduled_for"`
	StaleAfter   time.Duration `json:"stale_after"`
}

// NewStockTakeReminderTask constructs an Asynq task for the reminder sweep.
func NewStockTakeReminderTask(at time.Time, staleAfter time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(StockTakeReminderPayload{ScheduledFor: at, StaleAfter: staleAfter})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockTakeReminder, body, asynq.Queue(QueueDefault)), nil
}
