// Package ledger owns canonical on-hand quantities. Every change to an
// item's available quantity funnels through this package and appends exactly
// one immutable movement record.
package ledger

import (
	"errors"
	"time"

	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementSale records stock consumed by a completed sale.
	MovementSale MovementType = "SALE"
	// MovementProductionConsume records ingredients consumed by a production batch.
	MovementProductionConsume MovementType = "PRODUCTION_CONSUME"
	// MovementProductionOutput records finished goods produced by a batch.
	MovementProductionOutput MovementType = "PRODUCTION_OUTPUT"
	// MovementAdjustment records an approved stock adjustment.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReplenish records a manual or purchase-driven top-up.
	MovementReplenish MovementType = "REPLENISH"
)

// Item is an inventory record. AvailableQty is mutated only through
// movement application, never assigned directly.
type Item struct {
	ID           int64
	Name         string
	NameKey      string
	Category     string
	Unit         units.Unit
	AvailableQty float64
	CostPerUnit  float64
	PricePerUnit float64
	ReorderLevel float64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Movement is an append-only audit record of one quantity change.
type Movement struct {
	ID        int64
	ItemID    int64
	Type      MovementType
	QtyDelta  float64
	QtyBefore float64
	QtyAfter  float64
	UnitCost  float64
	RefType   string
	RefID     string
	CreatedBy int64
	CreatedAt time.Time
	Notes     string
}

// ConsumeInput describes a stock deduction request.
type ConsumeInput struct {
	ItemID   int64
	Quantity float64
	Type     MovementType
	RefType  string
	RefID    string
	Actor    shared.Actor
	Notes    string
	// IdempotencyKey optionally guards against duplicate posting. Empty
	// skips the guard; sale deductions may legitimately repeat per line.
	IdempotencyKey string
}

// ReplenishInput describes a stock increase: a goods receipt or a finished
// production batch. Type defaults to REPLENISH when empty.
type ReplenishInput struct {
	ItemID      int64
	Quantity    float64
	UnitCost    float64
	Type        MovementType
	ReferenceNo string
	Actor       shared.Actor
	Notes       string
}

// AdjustmentApplication carries an approved adjustment into the ledger.
type AdjustmentApplication struct {
	ReferenceNo    string
	ItemID         int64
	QuantityBefore float64
	QuantityAfter  float64
	Actor          shared.Actor
	Reason         string
}

// MovementFilter filters movement history queries.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrInsufficientStock signals a deduction larger than on-hand quantity.
	// Recoverable: the caller decides whether to skip, fall back or report.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrItemNotFound indicates the inventory item does not exist.
	ErrItemNotFound = errors.New("ledger: item not found")
	// ErrItemInactive indicates the item is disabled for movements.
	ErrItemInactive = errors.New("ledger: item inactive")
	// ErrInvalidQuantity indicates a non-positive or zero quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")
)
