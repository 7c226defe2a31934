package deduction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/recipes"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

type fakeStock struct {
	name      string
	unit      units.Unit
	available float64
	taken     []float64
}

func (s *fakeStock) Unit() units.Unit { return s.unit }

func (s *fakeStock) SourceName() string { return "fake" }

func (s *fakeStock) Deduct(ctx context.Context, qty float64, ref Reference, actor shared.Actor) (DeductedLine, error) {
	if qty > s.available {
		return DeductedLine{}, ledger.ErrInsufficientStock
	}
	s.available -= qty
	s.taken = append(s.taken, qty)
	return DeductedLine{Ingredient: s.name, Quantity: qty, Unit: string(s.unit), Source: s.SourceName()}, nil
}

type fakeSource struct {
	stocks map[string]*fakeStock
}

func newFakeSource(stocks ...*fakeStock) *fakeSource {
	src := &fakeSource{stocks: map[string]*fakeStock{}}
	for _, s := range stocks {
		src.stocks[recipes.FoldName(s.name)] = s
	}
	return src
}

func (f *fakeSource) Resolve(ctx context.Context, name string) (Stock, error) {
	stock, ok := f.stocks[recipes.FoldName(name)]
	if !ok {
		return nil, ErrNoStock
	}
	return stock, nil
}

var cashier = shared.Actor{ID: 5, Name: "Alex", Role: shared.RoleStaff}

var saleRef = Reference{Type: "pos_sale", ID: "sale-42"}

func TestDeductCompositeAllLines(t *testing.T) {
	chocolate := &fakeStock{name: "Chocolate", unit: units.Gram, available: 5000}
	sauce := &fakeStock{name: "Chocolate Sauce", unit: units.Milliliter, available: 500}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 40}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, sauce, cherry))

	result, err := engine.DeductComposite(context.Background(), "chocolate sundae", 2, saleRef, cashier)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Deducted, 3)
	require.Empty(t, result.Missing)
	require.InDelta(t, 4600, chocolate.available, 1e-9)
	require.InDelta(t, 440, sauce.available, 1e-9)
	require.InDelta(t, 38, cherry.available, 1e-9)
}

func TestDeductCompositePartialContinues(t *testing.T) {
	chocolate := &fakeStock{name: "Chocolate", unit: units.Gram, available: 5000}
	sauce := &fakeStock{name: "Chocolate Sauce", unit: units.Milliliter, available: 500}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 1}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, sauce, cherry))

	result, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 2, saleRef, cashier)
	require.NoError(t, err)
	require.False(t, result.Success)
	// Chocolate and sauce still came off even though the cherries ran out.
	require.Len(t, result.Deducted, 2)
	// The cherries exist; running short is an error, not a missing item.
	require.Empty(t, result.Missing)
	require.Equal(t, []string{"Cherry: insufficient stock"}, result.Errors)
	require.InDelta(t, 4600, chocolate.available, 1e-9)
	require.InDelta(t, 1, cherry.available, 1e-9)
}

func TestDeductCompositeMissingIngredientRecorded(t *testing.T) {
	chocolate := &fakeStock{name: "Chocolate", unit: units.Gram, available: 5000}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 10}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, cherry))

	result, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 1, saleRef, cashier)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, []string{"Chocolate Sauce"}, result.Missing)
	require.Equal(t, []string{"Chocolate Sauce: no matching inventory item"}, result.Errors)
	require.Len(t, result.Deducted, 2)
}

func TestDeductCompositeConvertsUnits(t *testing.T) {
	// Recipe lines are in grams; stock is tracked in kilograms.
	chocolate := &fakeStock{name: "Chocolate", unit: units.Kilogram, available: 5}
	sauce := &fakeStock{name: "Chocolate Sauce", unit: units.Liter, available: 1}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 10}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, sauce, cherry))

	result, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 1, saleRef, cashier)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.InDelta(t, 4.8, chocolate.available, 1e-9)
	require.InDelta(t, 0.97, sauce.available, 1e-9)
}

func TestDeductCompositeIncompatibleUnitsRecorded(t *testing.T) {
	// Sauce tracked in pieces cannot absorb a milliliter line.
	chocolate := &fakeStock{name: "Chocolate", unit: units.Gram, available: 5000}
	sauce := &fakeStock{name: "Chocolate Sauce", unit: units.Piece, available: 10}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 10}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, sauce, cherry))

	result, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 1, saleRef, cashier)
	require.NoError(t, err)
	require.False(t, result.Success)
	// The sauce exists, so it is an error entry rather than a missing item.
	require.Empty(t, result.Missing)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "Chocolate Sauce")
	require.InDelta(t, 10, sauce.available, 1e-9)
}

func TestDeductCompositeSeparatesMissingFromErrors(t *testing.T) {
	// The sauce is nowhere in inventory; the cherries exist but run short.
	chocolate := &fakeStock{name: "Chocolate", unit: units.Gram, available: 5000}
	cherry := &fakeStock{name: "Cherry", unit: units.Piece, available: 0}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(chocolate, cherry))

	result, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 1, saleRef, cashier)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Deducted, 1)
	require.Equal(t, []string{"Chocolate Sauce"}, result.Missing)
	require.Equal(t, []string{
		"Chocolate Sauce: no matching inventory item",
		"Cherry: insufficient stock",
	}, result.Errors)
}

func TestDeductCompositeUnknownRecipe(t *testing.T) {
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource())

	_, err := engine.DeductComposite(context.Background(), "Mystery Bowl", 1, saleRef, cashier)
	require.ErrorIs(t, err, recipes.ErrRecipeNotFound)
}

func TestDeductCompositeValidation(t *testing.T) {
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource())

	_, err := engine.DeductComposite(context.Background(), "Chocolate Sundae", 0, saleRef, cashier)
	require.ErrorIs(t, err, ErrInvalidUnits)

	_, err = engine.DeductComposite(context.Background(), "Chocolate Sundae", 1, saleRef, shared.Actor{})
	require.ErrorIs(t, err, shared.ErrActorRequired)
}

func TestDeductByCategoryFallback(t *testing.T) {
	mango := &fakeStock{name: "Mango", unit: units.Gram, available: 1000}
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource(mango))

	result, err := engine.DeductByCategory(context.Background(), "Mango", "Flavors", 3, saleRef, cashier)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Deducted, 1)
	require.InDelta(t, 700, mango.available, 1e-9)
}

func TestDeductByCategoryUnknownCategory(t *testing.T) {
	engine := NewEngine(recipes.DefaultCatalog(), nil, newFakeSource())

	_, err := engine.DeductByCategory(context.Background(), "Mango", "Hardware", 1, saleRef, cashier)
	require.ErrorIs(t, err, recipes.ErrNoCategoryRule)
}

func TestResolveTriesSourcesInOrder(t *testing.T) {
	// The primary tier lacks the flavor; the legacy tier still holds it.
	primary := newFakeSource(&fakeStock{name: "Cherry", unit: units.Piece, available: 10})
	legacy := newFakeSource(&fakeStock{name: "Pistachio", unit: units.Gram, available: 800})
	engine := NewEngine(recipes.DefaultCatalog(), nil, primary, legacy)

	result, err := engine.DeductByCategory(context.Background(), "Pistachio", "Flavors", 2, saleRef, cashier)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "fake", result.Deducted[0].Source)
	require.InDelta(t, 600, legacy.stocks[recipes.FoldName("Pistachio")].available, 1e-9)
}
