// Package deduction turns a sold menu item into inventory movements. A
// composite item resolves through its recipe line by line; items without a
// recipe fall back to a fixed per-category deduction.
package deduction

import "errors"

// Reference ties deductions back to the originating sale.
type Reference struct {
	Type string
	ID   string
}

// DeductedLine records one successful ingredient deduction.
type DeductedLine struct {
	Ingredient string  `json:"ingredient"`
	ItemID     int64   `json:"item_id,omitempty"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Source     string  `json:"source"`
	MovementID int64   `json:"movement_id,omitempty"`
}

// DeductionResult aggregates the per-ingredient outcomes of one sale line.
// A partially successful deduction never blocks the sale; the caller reads
// Missing and Errors to decide what to surface. Missing names ingredients
// that resolved to no inventory item; Errors carries every failure message,
// insufficient stock and unit mismatches included.
type DeductionResult struct {
	MenuItem  string         `json:"menu_item"`
	UnitsSold int            `json:"units_sold"`
	Success   bool           `json:"success"`
	Deducted  []DeductedLine `json:"deducted"`
	Missing   []string       `json:"missing"`
	Errors    []string       `json:"errors"`
}

var (
	// ErrNoStock indicates no source could resolve the ingredient.
	ErrNoStock = errors.New("deduction: no stock source for ingredient")
	// ErrInvalidUnits indicates a non-positive sold count.
	ErrInvalidUnits = errors.New("deduction: units sold must be positive")
)
