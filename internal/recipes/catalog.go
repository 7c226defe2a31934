// Package recipes holds the static reference data that maps composite menu
// items to the primitive ingredients they consume at sale time.
package recipes

import (
	"errors"

	"golang.org/x/text/cases"

	"github.com/creamery-pos/creamery-pos/internal/units"
)

// Ingredient is one line of a recipe.
type Ingredient struct {
	Name     string
	Quantity float64
	Unit     units.Unit
	// Category hints at which inventory bucket the ingredient lives in.
	// It disambiguates name collisions, it does not filter strictly.
	Category string
}

// Recipe decomposes a composite menu item into ingredient lines.
type Recipe struct {
	Name        string
	Ingredients []Ingredient
}

// ErrRecipeNotFound indicates no recipe exists for a menu item. Callers fall
// back to the per-category deduction table.
var ErrRecipeNotFound = errors.New("recipes: recipe not found")

// Catalog is a read-only lookup of recipes keyed by folded item name, so
// "chocolate sundae" and "Chocolate Sundae" resolve identically.
type Catalog struct {
	byName map[string]Recipe
	folder cases.Caser
}

// NewCatalog builds a catalog from the configured recipe set. Later entries
// with the same folded name replace earlier ones.
func NewCatalog(recipes ...Recipe) *Catalog {
	c := &Catalog{
		byName: make(map[string]Recipe, len(recipes)),
		folder: cases.Fold(),
	}
	for _, r := range recipes {
		c.byName[c.folder.String(r.Name)] = r
	}
	return c
}

// Lookup finds a recipe by case-insensitive name.
func (c *Catalog) Lookup(name string) (Recipe, error) {
	r, ok := c.byName[c.folder.String(name)]
	if !ok {
		return Recipe{}, ErrRecipeNotFound
	}
	return r, nil
}

// Len reports the number of recipes configured.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// FoldName normalises a free-text name the same way catalog keys are
// normalised. Ingredient-to-item resolution uses it so lookups stay caseless
// end to end.
func FoldName(name string) string {
	return cases.Fold().String(name)
}
