package adjustments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/stocktake"
)

type memoryRepo struct {
	adjustments    map[int64]StockAdjustment
	items          map[int64]ledger.Item
	movements      []ledger.Movement
	nextID         int64
	nextMovementID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(items ...ledger.Item) *memoryRepo {
	repo := &memoryRepo{
		adjustments: make(map[int64]StockAdjustment),
		items:       make(map[int64]ledger.Item),
	}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

// WithTx mirrors transaction semantics: a callback error restores every
// table to its pre-transaction state.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	adjSnapshot := make(map[int64]StockAdjustment, len(r.adjustments))
	for id, adj := range r.adjustments {
		adjSnapshot[id] = adj
	}
	itemSnapshot := make(map[int64]ledger.Item, len(r.items))
	for id, item := range r.items {
		itemSnapshot[id] = item
	}
	movementSnapshot := append([]ledger.Movement{}, r.movements...)
	nextID, nextMovementID := r.nextID, r.nextMovementID

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.adjustments = adjSnapshot
		r.items = itemSnapshot
		r.movements = movementSnapshot
		r.nextID, r.nextMovementID = nextID, nextMovementID
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (StockAdjustment, error) {
	adj, ok := r.adjustments[id]
	if !ok {
		return StockAdjustment{}, ErrNotFound
	}
	return adj, nil
}

func (r *memoryRepo) GetByReference(ctx context.Context, refNo string) (StockAdjustment, error) {
	for _, adj := range r.adjustments {
		if adj.ReferenceNo == refNo {
			return adj, nil
		}
	}
	return StockAdjustment{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	out := []StockAdjustment{}
	for _, adj := range r.adjustments {
		if filter.Status != "" && adj.Status != filter.Status {
			continue
		}
		if filter.ItemID != 0 && adj.ItemID != filter.ItemID {
			continue
		}
		if filter.SourceRef != "" && adj.SourceRef != filter.SourceRef {
			continue
		}
		out = append(out, adj)
	}
	return out, nil
}

func (tx *memoryTx) Insert(ctx context.Context, adj StockAdjustment) (int64, error) {
	tx.repo.nextID++
	adj.ID = tx.repo.nextID
	tx.repo.adjustments[adj.ID] = adj
	return adj.ID, nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (StockAdjustment, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) SetStatus(ctx context.Context, id int64, status Status, reviewedBy *int64, note string, at *time.Time) error {
	adj, ok := tx.repo.adjustments[id]
	if !ok {
		return ErrNotFound
	}
	adj.Status = status
	adj.ReviewedBy = reviewedBy
	adj.ReviewedAt = at
	adj.ReviewNote = note
	tx.repo.adjustments[id] = adj
	return nil
}

func (tx *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{repo: tx.repo}
}

type memoryLedgerTx struct {
	repo *memoryRepo
}

func (tx *memoryLedgerTx) GetItemForUpdate(ctx context.Context, id int64) (ledger.Item, error) {
	item, ok := tx.repo.items[id]
	if !ok {
		return ledger.Item{}, ledger.ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryLedgerTx) UpdateItemQuantity(ctx context.Context, id int64, qty, costPerUnit float64) error {
	item, ok := tx.repo.items[id]
	if !ok {
		return ledger.ErrItemNotFound
	}
	item.AvailableQty = qty
	item.CostPerUnit = costPerUnit
	tx.repo.items[id] = item
	return nil
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	tx.repo.nextMovementID++
	m.ID = tx.repo.nextMovementID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

// fakeLedger routes movement posting through the real ledger service so
// approvals exercise the negative-stock and inactive-item guards.
type fakeLedger struct {
	repo *memoryRepo
	svc  *ledger.Service
}

func (f *fakeLedger) GetItem(ctx context.Context, id int64) (ledger.Item, error) {
	item, ok := f.repo.items[id]
	if !ok {
		return ledger.Item{}, ledger.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeLedger) ApplyAdjustmentTx(ctx context.Context, tx ledger.TxRepository, app ledger.AdjustmentApplication) (ledger.Movement, error) {
	return f.svc.ApplyAdjustmentTx(ctx, tx, app)
}

type fakeApprovals struct {
	logs []shared.ApprovalLog
}

func (f *fakeApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	f.logs = append(f.logs, log)
	return nil
}

var (
	staff    = shared.Actor{ID: 7, Name: "Sam", Role: shared.RoleStaff}
	reviewer = shared.Actor{ID: 3, Name: "Robin", Role: shared.RoleManager}
)

func newTestService(items ...ledger.Item) (*Service, *memoryRepo, *fakeApprovals) {
	repo := newMemoryRepo(items...)
	led := &fakeLedger{repo: repo, svc: ledger.NewService(nil, nil, nil, nil)}
	approvals := &fakeApprovals{}
	svc := NewService(repo, led, approvals, nil, nil)
	return svc, repo, approvals
}

func chocolateItem() ledger.Item {
	return ledger.Item{ID: 1, Name: "Chocolate", AvailableQty: 100, CostPerUnit: 2.5, Active: true}
}

func TestCreateManualAdjustment(t *testing.T) {
	svc, _, approvals := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 92, Reason: "damaged tubs", Actor: staff})
	require.NoError(t, err)
	require.Equal(t, StatusPending, adj.Status)
	require.Equal(t, TypeCorrection, adj.AdjustmentType)
	require.Equal(t, SourceManual, adj.SourceType)
	require.InDelta(t, 100, adj.QuantityBefore, 1e-9)
	require.InDelta(t, 92, adj.QuantityAfter, 1e-9)
	require.InDelta(t, -8, adj.QuantityDelta, 1e-9)
	require.Equal(t, staff.ID, adj.RequestedBy)

	require.Len(t, approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
}

func TestCreateRejectsNoChange(t *testing.T) {
	svc, _, _ := newTestService(chocolateItem())

	_, err := svc.Create(context.Background(), CreateInput{ItemID: 1, QuantityAfter: 100, Reason: "noop", Actor: staff})
	require.ErrorIs(t, err, ErrNoChange)
}

func TestCreateFromStockTakeSeedTypesBySign(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Counted 92 against a recorded 100: the shrinkage is a decrease.
	ref, err := svc.CreateFromStockTake(ctx, stocktake.AdjustmentSeed{
		StockTakeID:    9,
		StockTakeRef:   "ST-260829-ABCDEF",
		ItemID:         1,
		ItemName:       "Chocolate",
		QuantityBefore: 100,
		QuantityAfter:  92,
		UnitCost:       2.5,
		Actor:          reviewer,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	adj, err := svc.GetByReference(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, StatusPending, adj.Status)
	require.Equal(t, TypeDecrease, adj.AdjustmentType)
	require.Equal(t, SourceStockTake, adj.SourceType)
	require.Equal(t, "ST-260829-ABCDEF", adj.SourceRef)

	// Counted above the recorded quantity: an increase.
	ref, err = svc.CreateFromStockTake(ctx, stocktake.AdjustmentSeed{
		StockTakeID:    9,
		StockTakeRef:   "ST-260829-ABCDEF",
		ItemID:         2,
		ItemName:       "Cherry",
		QuantityBefore: 40,
		QuantityAfter:  47,
		UnitCost:       0.3,
		Actor:          reviewer,
	})
	require.NoError(t, err)

	adj, err = svc.GetByReference(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, TypeIncrease, adj.AdjustmentType)
}

func TestApproveRequiresApprovalRole(t *testing.T) {
	svc, repo, _ := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 92, Reason: "damaged", Actor: reviewer})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, adj.ID, "", staff)
	require.ErrorIs(t, err, shared.ErrPrivilege)
	require.Empty(t, repo.movements)

	got, err := svc.Get(ctx, adj.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestApproveRejectsSelfApproval(t *testing.T) {
	svc, repo, _ := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 92, Reason: "damaged", Actor: reviewer})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, adj.ID, "", reviewer)
	require.ErrorIs(t, err, ErrSelfApproval)
	require.Empty(t, repo.movements)
}

func TestApproveAppliesToLedger(t *testing.T) {
	svc, repo, approvals := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 92, Reason: "damaged", Actor: staff})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, adj.ID, "checked the freezer", reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, reviewer.ID, *approved.ReviewedBy)

	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, ledger.MovementAdjustment, m.Type)
	require.Equal(t, adj.ReferenceNo, m.RefID)
	require.InDelta(t, -8, m.QtyDelta, 1e-9)
	require.InDelta(t, 92, repo.items[1].AvailableQty, 1e-9)

	// Second review attempt fails: the adjustment left pending.
	_, err = svc.Approve(ctx, adj.ID, "", reviewer)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, repo.movements, 1)

	require.Len(t, approvals.logs, 2)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[1].Action)
}

func TestApproveRollsBackWhenLedgerRejects(t *testing.T) {
	svc, repo, _ := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 92, Reason: "damaged", Actor: staff})
	require.NoError(t, err)

	// Concurrent sales drained the item below the adjustment's delta, so
	// applying -8 would drive the quantity negative.
	item := repo.items[1]
	item.AvailableQty = 5
	repo.items[1] = item

	_, err = svc.Approve(ctx, adj.ID, "", reviewer)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// The flip rolled back with the movement: still pending, no review
	// fields, no movement, quantity untouched.
	got, err := repo.Get(ctx, adj.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.ReviewedBy)
	require.Nil(t, got.ReviewedAt)
	require.Empty(t, repo.movements)
	require.InDelta(t, 5, repo.items[1].AvailableQty, 1e-9)

	// Once the stock position is fixed a reviewer can retry.
	item = repo.items[1]
	item.AvailableQty = 50
	repo.items[1] = item

	approved, err := svc.Approve(ctx, adj.ID, "", reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Len(t, repo.movements, 1)
	require.InDelta(t, 42, repo.items[1].AvailableQty, 1e-9)
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	svc, repo, approvals := newTestService(chocolateItem())
	ctx := context.Background()

	adj, err := svc.Create(ctx, CreateInput{ItemID: 1, QuantityAfter: 105, Reason: "recount", Actor: staff})
	require.NoError(t, err)
	require.Equal(t, TypeCorrection, adj.AdjustmentType)

	rejected, err := svc.Reject(ctx, adj.ID, "no evidence", reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Empty(t, repo.movements)
	require.InDelta(t, 100, repo.items[1].AvailableQty, 1e-9)

	require.Equal(t, shared.ApprovalReject, approvals.logs[len(approvals.logs)-1].Action)
}
