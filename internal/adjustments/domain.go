package adjustments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// Status enumerates the approval lifecycle of an adjustment.
type Status string

const (
	// StatusPending awaits review. The ledger is untouched.
	StatusPending Status = "pending"
	// StatusApproved has been reviewed and applied to the ledger.
	StatusApproved Status = "approved"
	// StatusRejected has been reviewed and discarded.
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Type classifies the direction of an adjustment.
type Type string

const (
	// TypeIncrease adds stock.
	TypeIncrease Type = "increase"
	// TypeDecrease removes stock.
	TypeDecrease Type = "decrease"
	// TypeCorrection reconciles a counted quantity against the system.
	TypeCorrection Type = "correction"
)

// SourceType tells where an adjustment originated.
type SourceType string

const (
	// SourceManual is an operator-raised adjustment.
	SourceManual SourceType = "manual"
	// SourceStockTake is a variance carried over from a completed count.
	SourceStockTake SourceType = "stock_take"
)

// StockAdjustment is a proposed quantity correction. It stays pending until
// a reviewer with approval rights signs it off; only then does the ledger
// move.
type StockAdjustment struct {
	ID             int64
	ReferenceNo    string
	ItemID         int64
	ItemName       string
	AdjustmentType Type
	QuantityBefore float64
	QuantityAfter  float64
	QuantityDelta  float64
	UnitCost       float64
	Reason         string
	SourceType     SourceType
	SourceRef      string
	Status         Status
	RequestedBy    int64
	RequestedAt    time.Time
	ReviewedBy     *int64
	ReviewedAt     *time.Time
	ReviewNote     string
}

// CreateInput carries a manual adjustment request.
type CreateInput struct {
	ItemID        int64
	QuantityAfter float64
	Reason        string
	Actor         shared.Actor
}

// Validate checks the input before any store access.
func (in CreateInput) Validate() error {
	if in.ItemID == 0 {
		return fmt.Errorf("adjustments: %w", shared.ErrNotFound)
	}
	if in.QuantityAfter < 0 {
		return ErrInvalidQuantity
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ErrReasonRequired
	}
	if !in.Actor.Known() {
		return shared.ErrActorRequired
	}
	return nil
}

// ListFilter filters adjustment queries.
type ListFilter struct {
	Status    Status
	ItemID    int64
	SourceRef string
}

var (
	// ErrNotFound indicates the adjustment does not exist.
	ErrNotFound = fmt.Errorf("adjustments: %w", shared.ErrNotFound)
	// ErrInvalidState indicates a review action on a non-pending adjustment.
	ErrInvalidState = fmt.Errorf("adjustments: %w", shared.ErrInvalidState)
	// ErrSelfApproval indicates the requester trying to review their own
	// adjustment.
	ErrSelfApproval = errors.New("adjustments: requester cannot review own adjustment")
	// ErrInvalidQuantity indicates a negative target quantity.
	ErrInvalidQuantity = errors.New("adjustments: quantity must be >= 0")
	// ErrReasonRequired indicates a request without a reason.
	ErrReasonRequired = errors.New("adjustments: reason required")
	// ErrNoChange indicates before and after quantities that match.
	ErrNoChange = errors.New("adjustments: quantities are already equal")
)

// typeFor picks the adjustment type. Stock-take variances carry the
// direction of the variance; manual requests are corrections.
func typeFor(delta float64, source SourceType) Type {
	if source == SourceManual {
		return TypeCorrection
	}
	if delta > 0 {
		return TypeIncrease
	}
	return TypeDecrease
}
