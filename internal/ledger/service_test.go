package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

type memoryRepo struct {
	items     map[int64]Item
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(items ...Item) *memoryRepo {
	repo := &memoryRepo{items: make(map[int64]Item)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) FindItemByNameKey(ctx context.Context, nameKey string) (Item, error) {
	for _, item := range r.items {
		if item.NameKey == nameKey && item.Active {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (r *memoryRepo) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	items := []Item{}
	for _, item := range r.items {
		if activeOnly && !item.Active {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	out := []Movement{}
	for _, m := range r.movements {
		if m.ItemID == filter.ItemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	return tx.repo.GetItem(ctx, id)
}

func (tx *memoryTx) UpdateItemQuantity(ctx context.Context, id int64, qty, costPerUnit float64) error {
	item, ok := tx.repo.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.AvailableQty = qty
	item.CostPerUnit = costPerUnit
	tx.repo.items[id] = item
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

var staff = shared.Actor{ID: 7, Name: "Dana", Role: shared.RoleStaff}

func vanillaItem(qty float64) Item {
	return Item{ID: 1, Name: "Vanilla", NameKey: "vanilla", Category: "Flavors", Unit: units.Gram,
		AvailableQty: qty, CostPerUnit: 0.02, Active: true}
}

func TestConsumeSequence(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(5000))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	m, err := svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 2000, Type: MovementSale, RefType: "order", RefID: "ORD-1", Actor: staff})
	require.NoError(t, err)
	require.InDelta(t, -2000, m.QtyDelta, 1e-9)
	require.InDelta(t, 5000, m.QtyBefore, 1e-9)
	require.InDelta(t, 3000, m.QtyAfter, 1e-9)

	m, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 2000, Type: MovementSale, RefType: "order", RefID: "ORD-2", Actor: staff})
	require.NoError(t, err)
	require.InDelta(t, 1000, m.QtyAfter, 1e-9)

	_, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 1500, Type: MovementSale, RefType: "order", RefID: "ORD-3", Actor: staff})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Failed consume leaves no movement and no mutation.
	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 1000, item.AvailableQty, 1e-9)
	require.Len(t, repo.movements, 2)
}

func TestMovementSumMatchesAvailable(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(500))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Replenish(ctx, ReplenishInput{ItemID: 1, Quantity: 700, UnitCost: 0.03, ReferenceNo: "GRN-1", Actor: staff})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 300, Type: MovementProductionConsume, RefType: "batch", RefID: "B-1", Actor: staff})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 150, Type: MovementSale, RefType: "order", RefID: "ORD-9", Actor: staff})
	require.NoError(t, err)

	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)

	sum := 0.0
	for _, m := range repo.movements {
		sum += m.QtyDelta
	}
	require.InDelta(t, item.AvailableQty, 500+sum, 1e-9)
}

func TestReplenishWeightedAverageCost(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Name: "Milk", NameKey: "milk", Unit: units.Milliliter,
		AvailableQty: 1000, CostPerUnit: 0.001, Active: true})
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	m, err := svc.Replenish(ctx, ReplenishInput{ItemID: 1, Quantity: 1000, UnitCost: 0.003, ReferenceNo: "GRN-2", Actor: staff})
	require.NoError(t, err)
	require.InDelta(t, 2000, m.QtyAfter, 1e-9)
	require.InDelta(t, 0.003, m.UnitCost, 1e-9)

	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 0.002, item.CostPerUnit, 1e-9)
}

func TestConsumeValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(vanillaItem(100)), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 0, Type: MovementSale, Actor: staff})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 10, Type: MovementReplenish, Actor: staff})
	require.Error(t, err)

	_, err = svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 10, Type: MovementSale})
	require.ErrorIs(t, err, shared.ErrActorRequired)
}

func TestConsumeRejectsStockIncreasingTypes(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(1000))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	// Production output adds stock; it must never post through the
	// consume path with a negative delta.
	_, err := svc.Consume(ctx, ConsumeInput{ItemID: 1, Quantity: 200, Type: MovementProductionOutput, RefType: "batch", RefID: "B-7", Actor: staff})
	require.Error(t, err)
	require.Empty(t, repo.movements)

	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 1000, item.AvailableQty, 1e-9)
}

func TestReplenishProductionOutput(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(1000))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	m, err := svc.Replenish(ctx, ReplenishInput{ItemID: 1, Quantity: 200, UnitCost: 0.02,
		Type: MovementProductionOutput, ReferenceNo: "B-7", Actor: staff})
	require.NoError(t, err)
	require.Equal(t, MovementProductionOutput, m.Type)
	require.Equal(t, "production_batch", m.RefType)
	require.InDelta(t, 200, m.QtyDelta, 1e-9)
	require.InDelta(t, 1200, m.QtyAfter, 1e-9)

	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 1200, item.AvailableQty, 1e-9)
}

func TestReplenishRejectsNonAdditiveType(t *testing.T) {
	svc := NewService(newMemoryRepo(vanillaItem(1000)), nil, nil, nil)

	_, err := svc.Replenish(context.Background(), ReplenishInput{ItemID: 1, Quantity: 10, UnitCost: 0.02,
		Type: MovementSale, ReferenceNo: "GRN-3", Actor: staff})
	require.Error(t, err)
}

func TestConsumeInactiveItem(t *testing.T) {
	item := vanillaItem(100)
	item.Active = false
	svc := NewService(newMemoryRepo(item), nil, nil, nil)

	_, err := svc.Consume(context.Background(), ConsumeInput{ItemID: 1, Quantity: 10, Type: MovementSale, RefType: "order", RefID: "ORD-1", Actor: staff})
	require.ErrorIs(t, err, ErrItemInactive)
}

func TestApplyAdjustment(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(100))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	m, err := svc.ApplyAdjustment(ctx, AdjustmentApplication{
		ReferenceNo:    "ADJ-1",
		ItemID:         1,
		QuantityBefore: 100,
		QuantityAfter:  92,
		Actor:          staff,
		Reason:         "stock take variance",
	})
	require.NoError(t, err)
	require.InDelta(t, -8, m.QtyDelta, 1e-9)
	require.Equal(t, MovementAdjustment, m.Type)
	require.Equal(t, "stock_adjustment", m.RefType)

	item, err := svc.GetItem(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 92, item.AvailableQty, 1e-9)
}

func TestApplyAdjustmentGuardsNegative(t *testing.T) {
	repo := newMemoryRepo(vanillaItem(5))
	svc := NewService(repo, nil, nil, nil)

	// Counted 100 -> 40, but concurrent sales already drained to 5.
	_, err := svc.ApplyAdjustment(context.Background(), AdjustmentApplication{
		ReferenceNo:    "ADJ-2",
		ItemID:         1,
		QuantityBefore: 100,
		QuantityAfter:  40,
		Actor:          staff,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.movements)
}
