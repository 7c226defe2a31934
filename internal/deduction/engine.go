package deduction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/recipes"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

// Engine resolves sold menu items into ledger deductions.
type Engine struct {
	catalog *recipes.Catalog
	sources []StockSource
	logger  *slog.Logger
}

// NewEngine builds an engine. Sources are consulted in the given order.
func NewEngine(catalog *recipes.Catalog, logger *slog.Logger, sources ...StockSource) *Engine {
	return &Engine{catalog: catalog, sources: sources, logger: logger}
}

// DeductComposite deducts every recipe line of a composite item, scaled by
// the sold count. Lines are processed in recipe order; a line that cannot
// be deducted is recorded and the loop continues, so one missing topping
// does not block the rest of the sundae. recipes.ErrRecipeNotFound is
// returned untouched so callers can fall back to DeductByCategory.
func (e *Engine) DeductComposite(ctx context.Context, menuItem string, unitsSold int, ref Reference, actor shared.Actor) (DeductionResult, error) {
	if unitsSold <= 0 {
		return DeductionResult{}, ErrInvalidUnits
	}
	if !actor.Known() {
		return DeductionResult{}, shared.ErrActorRequired
	}
	recipe, err := e.catalog.Lookup(menuItem)
	if err != nil {
		return DeductionResult{}, err
	}

	result := newResult(recipe.Name, unitsSold)
	for _, ing := range recipe.Ingredients {
		needed := ing.Quantity * float64(unitsSold)
		if err := e.deductLine(ctx, &result, ing.Name, needed, ing.Unit, ref, actor); err != nil {
			return result, err
		}
	}
	result.Success = len(result.Deducted) == len(recipe.Ingredients)
	e.logResult(result)
	return result, nil
}

// DeductByCategory applies the fixed per-category deduction for items that
// have no recipe, deducting the item itself.
func (e *Engine) DeductByCategory(ctx context.Context, itemName, category string, unitsSold int, ref Reference, actor shared.Actor) (DeductionResult, error) {
	if unitsSold <= 0 {
		return DeductionResult{}, ErrInvalidUnits
	}
	if !actor.Known() {
		return DeductionResult{}, shared.ErrActorRequired
	}
	rule, err := recipes.FallbackFor(category)
	if err != nil {
		return DeductionResult{}, err
	}

	result := newResult(itemName, unitsSold)
	needed := rule.Quantity * float64(unitsSold)
	if err := e.deductLine(ctx, &result, itemName, needed, rule.Unit, ref, actor); err != nil {
		return result, err
	}
	result.Success = len(result.Deducted) == 1
	e.logResult(result)
	return result, nil
}

// deductLine resolves, converts and consumes one ingredient quantity.
// Recoverable failures land in the result; only infrastructure errors
// propagate. Missing holds names that resolved to no inventory item at
// all; every other recoverable failure is an error entry only.
func (e *Engine) deductLine(ctx context.Context, result *DeductionResult, name string, qty float64, unit units.Unit, ref Reference, actor shared.Actor) error {
	stock, err := e.resolve(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNoStock) {
			result.miss(name, "no matching inventory item")
			return nil
		}
		return err
	}

	converted, err := units.Convert(qty, unit, stock.Unit())
	if err != nil {
		result.fail(name, fmt.Sprintf("cannot convert %s to %s", unit, stock.Unit()))
		return nil
	}

	line, err := stock.Deduct(ctx, converted, ref, actor)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientStock):
			result.fail(name, "insufficient stock")
			return nil
		case errors.Is(err, ledger.ErrItemInactive):
			result.fail(name, "item inactive")
			return nil
		}
		return err
	}
	result.Deducted = append(result.Deducted, line)
	return nil
}

func (e *Engine) resolve(ctx context.Context, name string) (Stock, error) {
	for _, source := range e.sources {
		stock, err := source.Resolve(ctx, name)
		if err == nil {
			return stock, nil
		}
		if !errors.Is(err, ErrNoStock) {
			return nil, err
		}
	}
	return nil, ErrNoStock
}

func (e *Engine) logResult(result DeductionResult) {
	if e.logger == nil {
		return
	}
	e.logger.Info("deduction processed",
		slog.String("menu_item", result.MenuItem),
		slog.Int("units_sold", result.UnitsSold),
		slog.Bool("success", result.Success),
		slog.Int("deducted", len(result.Deducted)),
		slog.Int("missing", len(result.Missing)),
		slog.Int("errors", len(result.Errors)))
}

func newResult(menuItem string, unitsSold int) DeductionResult {
	return DeductionResult{
		MenuItem:  menuItem,
		UnitsSold: unitsSold,
		Deducted:  []DeductedLine{},
		Missing:   []string{},
		Errors:    []string{},
	}
}

func (r *DeductionResult) miss(name, reason string) {
	r.Missing = append(r.Missing, name)
	r.fail(name, reason)
}

func (r *DeductionResult) fail(name, reason string) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", name, reason))
}
