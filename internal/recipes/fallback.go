package recipes

import (
	"errors"

	"github.com/creamery-pos/creamery-pos/internal/units"
)

// CategoryDeduction is the fixed per-unit deduction applied to menu items
// that have no recipe. It is a bounded heuristic over a closed category set,
// not a rule engine.
type CategoryDeduction struct {
	Quantity float64
	Unit     units.Unit
}

// ErrNoCategoryRule indicates the category is outside the fallback set.
var ErrNoCategoryRule = errors.New("recipes: no fallback rule for category")

var categoryFallback = map[string]CategoryDeduction{
	"Flavors":    {Quantity: 100, Unit: units.Gram},
	"Milkshakes": {Quantity: 200, Unit: units.Milliliter},
	"Juice":      {Quantity: 250, Unit: units.Milliliter},
	"Toppings":   {Quantity: 1, Unit: units.Piece},
}

// FallbackFor returns the per-unit deduction for a category.
func FallbackFor(category string) (CategoryDeduction, error) {
	rule, ok := categoryFallback[category]
	if !ok {
		return CategoryDeduction{}, ErrNoCategoryRule
	}
	return rule, nil
}

// DefaultCatalog returns the shop's configured composite recipes. In a
// larger deployment this would load from the settings service; the closed
// set below mirrors the menu the deduction engine is asked to resolve.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Recipe{
			Name: "Chocolate Sundae",
			Ingredients: []Ingredient{
				{Name: "Chocolate", Quantity: 200, Unit: units.Gram, Category: "Flavors"},
				{Name: "Chocolate Sauce", Quantity: 30, Unit: units.Milliliter, Category: "Sauces"},
				{Name: "Cherry", Quantity: 1, Unit: units.Piece, Category: "Toppings"},
			},
		},
		Recipe{
			Name: "Vanilla Sundae",
			Ingredients: []Ingredient{
				{Name: "Vanilla", Quantity: 200, Unit: units.Gram, Category: "Flavors"},
				{Name: "Caramel Sauce", Quantity: 30, Unit: units.Milliliter, Category: "Sauces"},
				{Name: "Cherry", Quantity: 1, Unit: units.Piece, Category: "Toppings"},
			},
		},
		Recipe{
			Name: "Banana Split",
			Ingredients: []Ingredient{
				{Name: "Vanilla", Quantity: 100, Unit: units.Gram, Category: "Flavors"},
				{Name: "Chocolate", Quantity: 100, Unit: units.Gram, Category: "Flavors"},
				{Name: "Strawberry", Quantity: 100, Unit: units.Gram, Category: "Flavors"},
				{Name: "Banana", Quantity: 1, Unit: units.Piece, Category: "Fruit"},
				{Name: "Chocolate Sauce", Quantity: 20, Unit: units.Milliliter, Category: "Sauces"},
			},
		},
	)
}
