// Package stocktake implements the counting workflow that reconciles
// system-recorded quantities against physical counts.
package stocktake

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

// Status enumerates stock-take lifecycle values. Transitions are
// one-directional; completed and cancelled are terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// StockTake is one bounded counting session.
type StockTake struct {
	ID                 int64
	ReferenceNo        string
	Title              string
	Description        string
	Location           string
	Status             Status
	InitiatedBy        int64
	TotalVarianceValue float64
	InitiatedAt        time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// Item is one counted line. SystemQty and UnitCost are snapshots taken when
// the session starts and never change afterwards.
type Item struct {
	ID            int64
	StockTakeID   int64
	ItemID        int64
	ItemName      string
	Unit          units.Unit
	SystemQty     float64
	UnitCost      float64
	PhysicalQty   *float64
	VarianceQty   float64
	VarianceValue float64
	CountedBy     *int64
	CountedAt     *time.Time
	Notes         string
}

// Counted reports whether a physical count was recorded. Variance fields are
// only meaningful when true.
func (i Item) Counted() bool {
	return i.PhysicalQty != nil
}

// CreateInput captures stock-take creation input.
type CreateInput struct {
	Title       string
	Description string
	Location    string
	Actor       shared.Actor
}

// Validate ensures correctness.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("stocktake: title required")
	}
	if !in.Actor.Known() {
		return shared.ErrActorRequired
	}
	return nil
}

// VarianceLine is one row of the variance report.
type VarianceLine struct {
	ItemID        int64   `json:"item_id"`
	ItemName      string  `json:"item_name"`
	Unit          string  `json:"unit"`
	SystemQty     float64 `json:"system_qty"`
	PhysicalQty   float64 `json:"physical_qty"`
	VarianceQty   float64 `json:"variance_qty"`
	UnitCost      float64 `json:"unit_cost"`
	VarianceValue float64 `json:"variance_value"`
}

// VarianceReport is the read-only aggregation over a stock-take.
type VarianceReport struct {
	StockTakeID        int64          `json:"stock_take_id"`
	ReferenceNo        string         `json:"reference_no"`
	Status             Status         `json:"status"`
	TotalItems         int            `json:"total_items"`
	ItemsCounted       int            `json:"items_counted"`
	ItemsUncounted     int            `json:"items_uncounted"`
	ItemsWithVariance  int            `json:"items_with_variance"`
	PositiveVariances  int            `json:"positive_variances"`
	NegativeVariances  int            `json:"negative_variances"`
	TotalVarianceValue float64        `json:"total_variance_value"`
	Lines              []VarianceLine `json:"lines"`
}

// ListFilter filters stock-take listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

var (
	// ErrNotFound indicates a missing stock-take or line.
	ErrNotFound = fmt.Errorf("stocktake: %w", shared.ErrNotFound)
	// ErrInvalidState indicates an action that violates the status workflow.
	ErrInvalidState = fmt.Errorf("stocktake: %w", shared.ErrInvalidState)
	// ErrInvalidCount indicates a negative physical quantity.
	ErrInvalidCount = errors.New("stocktake: physical quantity must be >= 0")
)
