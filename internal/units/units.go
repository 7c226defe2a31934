// Package units converts quantities between the measurement units used by
// recipes and inventory records.
package units

import (
	"errors"
	"fmt"
)

// Unit is a measurement unit carried on inventory items and recipe lines.
type Unit string

const (
	Gram       Unit = "g"
	Kilogram   Unit = "kg"
	Milliliter Unit = "ml"
	Liter      Unit = "L"
	Piece      Unit = "pcs"
)

// Family groups units that convert into each other.
type Family string

const (
	FamilyMass   Family = "mass"
	FamilyVolume Family = "volume"
	FamilyCount  Family = "count"
)

// ErrIncompatibleUnits indicates a conversion across unit families. It marks
// a data-integrity problem between a recipe line and an inventory record and
// must never be absorbed silently.
var ErrIncompatibleUnits = errors.New("units: incompatible unit families")

// ErrUnknownUnit indicates a unit outside the supported set.
var ErrUnknownUnit = errors.New("units: unknown unit")

// toBase maps each unit to its family base (g, ml, pcs) factor.
var toBase = map[Unit]struct {
	family Family
	factor float64
}{
	Gram:       {FamilyMass, 1},
	Kilogram:   {FamilyMass, 1000},
	Milliliter: {FamilyVolume, 1},
	Liter:      {FamilyVolume, 1000},
	Piece:      {FamilyCount, 1},
}

// FamilyOf returns the family a unit belongs to.
func FamilyOf(u Unit) (Family, error) {
	entry, ok := toBase[u]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return entry.family, nil
}

// Convert converts qty from one unit to another within the same family.
// Identity conversions return qty unchanged.
func Convert(qty float64, from, to Unit) (float64, error) {
	src, ok := toBase[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
	}
	dst, ok := toBase[to]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	if src.family != dst.family {
		return 0, fmt.Errorf("%w: %s -> %s", ErrIncompatibleUnits, from, to)
	}
	if from == to {
		return qty, nil
	}
	return qty * src.factor / dst.factor, nil
}
