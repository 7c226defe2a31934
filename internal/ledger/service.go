package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/creamery-pos/creamery-pos/internal/shared"
)

// Quantities closer to zero than this are treated as zero.
const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	FindItemByNameKey(ctx context.Context, nameKey string) (Item, error)
	ListItems(ctx context.Context, activeOnly bool) ([]Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes the transactional operations movement posting needs.
// GetItemForUpdate must take a row lock so concurrent read-modify-write on
// the same item serialises at the store.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	UpdateItemQuantity(ctx context.Context, id int64, qty, costPerUnit float64) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, logger: logger}
}

// Consume decrements on-hand quantity for a sale or production draw.
// Requests larger than the available quantity fail with
// ErrInsufficientStock and leave no trace in the movement log.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	switch input.Type {
	case MovementSale, MovementProductionConsume:
	default:
		return Movement{}, fmt.Errorf("ledger: movement type %q not consumable", input.Type)
	}
	if !input.Actor.Known() {
		return Movement{}, shared.ErrActorRequired
	}
	return s.post(ctx, postParams{
		ItemID:         input.ItemID,
		QtyDelta:       -input.Quantity,
		Type:           input.Type,
		RefType:        input.RefType,
		RefID:          input.RefID,
		Actor:          input.Actor,
		Notes:          input.Notes,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// Replenish increments on-hand quantity and folds the acquisition cost into
// the item's cost per unit using a weighted moving average. It posts
// REPLENISH for goods receipts and PRODUCTION_OUTPUT for finished batches;
// both add stock, never remove it.
func (s *Service) Replenish(ctx context.Context, input ReplenishInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return Movement{}, ErrInvalidUnitCost
	}
	if !input.Actor.Known() {
		return Movement{}, shared.ErrActorRequired
	}
	movementType := input.Type
	if movementType == "" {
		movementType = MovementReplenish
	}
	refType := "replenishment"
	switch movementType {
	case MovementReplenish:
	case MovementProductionOutput:
		refType = "production_batch"
	default:
		return Movement{}, fmt.Errorf("ledger: movement type %q does not add stock", movementType)
	}
	key := ""
	if input.ReferenceNo != "" {
		key = fmt.Sprintf("%s:%s:%d", movementType, input.ReferenceNo, input.ItemID)
	}
	return s.post(ctx, postParams{
		ItemID:         input.ItemID,
		QtyDelta:       input.Quantity,
		UnitCost:       input.UnitCost,
		Type:           movementType,
		RefType:        refType,
		RefID:          input.ReferenceNo,
		Actor:          input.Actor,
		Notes:          input.Notes,
		IdempotencyKey: key,
		Reprice:        true,
	})
}

// ApplyAdjustment posts the movement for an approved stock adjustment. The
// delta is derived from the counted before/after pair, then applied to the
// current quantity, which may have moved since the count.
func (s *Service) ApplyAdjustment(ctx context.Context, app AdjustmentApplication) (Movement, error) {
	params, err := adjustmentParams(app)
	if err != nil {
		return Movement{}, err
	}
	return s.post(ctx, params)
}

// ApplyAdjustmentTx posts the adjustment movement on the caller's open
// transaction. The approval gate uses it so the pending-to-approved flip
// and the movement commit or roll back together.
func (s *Service) ApplyAdjustmentTx(ctx context.Context, tx TxRepository, app AdjustmentApplication) (Movement, error) {
	params, err := adjustmentParams(app)
	if err != nil {
		return Movement{}, err
	}
	return s.postTx(ctx, tx, params)
}

func adjustmentParams(app AdjustmentApplication) (postParams, error) {
	delta := app.QuantityAfter - app.QuantityBefore
	if math.Abs(delta) < qtyEpsilon {
		return postParams{}, ErrInvalidQuantity
	}
	if !app.Actor.Known() {
		return postParams{}, shared.ErrActorRequired
	}
	key := ""
	if app.ReferenceNo != "" {
		key = fmt.Sprintf("ADJUSTMENT:%s", app.ReferenceNo)
	}
	return postParams{
		ItemID:         app.ItemID,
		QtyDelta:       delta,
		Type:           MovementAdjustment,
		RefType:        "stock_adjustment",
		RefID:          app.ReferenceNo,
		Actor:          app.Actor,
		Notes:          app.Reason,
		IdempotencyKey: key,
	}, nil
}

// GetItem fetches one inventory item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// FindItemByName resolves an item by folded name key.
func (s *Service) FindItemByName(ctx context.Context, nameKey string) (Item, error) {
	return s.repo.FindItemByNameKey(ctx, nameKey)
}

// ListItems lists inventory items.
func (s *Service) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	return s.repo.ListItems(ctx, activeOnly)
}

// Movements lists movement history for an item.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 {
		return nil, ErrItemNotFound
	}
	return s.repo.ListMovements(ctx, filter)
}

type postParams struct {
	ItemID         int64
	QtyDelta       float64
	UnitCost       float64
	Type           MovementType
	RefType        string
	RefID          string
	Actor          shared.Actor
	Notes          string
	IdempotencyKey string
	// Reprice folds UnitCost into the item cost via weighted average.
	Reprice bool
}

func (s *Service) post(ctx context.Context, params postParams) (Movement, error) {
	insertedKey := false
	if s.idempotency != nil && params.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.IdempotencyKey, "ledger"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.postTx(ctx, tx, params)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, params.IdempotencyKey)
		}
		return Movement{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  params.Actor.ID,
			Action:   fmt.Sprintf("ledger:%s", params.Type),
			Entity:   "inventory_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"item_id":   params.ItemID,
				"qty_delta": params.QtyDelta,
				"qty_after": movement.QtyAfter,
				"ref_type":  params.RefType,
				"ref_id":    params.RefID,
			},
		})
	}
	if s.logger != nil {
		s.logger.Info("movement posted",
			slog.String("type", string(params.Type)),
			slog.Int64("item_id", params.ItemID),
			slog.Float64("qty_delta", params.QtyDelta),
			slog.Float64("qty_after", movement.QtyAfter),
		)
	}
	return movement, nil
}

// postTx applies one movement on an already-open transaction. The row lock
// taken by GetItemForUpdate serialises concurrent posting per item.
func (s *Service) postTx(ctx context.Context, tx TxRepository, params postParams) (Movement, error) {
	item, err := tx.GetItemForUpdate(ctx, params.ItemID)
	if err != nil {
		return Movement{}, err
	}
	if !item.Active {
		return Movement{}, ErrItemInactive
	}
	newQty := item.AvailableQty + params.QtyDelta
	if newQty < -qtyEpsilon {
		return Movement{}, ErrInsufficientStock
	}
	if math.Abs(newQty) < qtyEpsilon {
		newQty = 0
	}
	unitCost := item.CostPerUnit
	newCost := item.CostPerUnit
	if params.Reprice && params.QtyDelta > 0 {
		unitCost = params.UnitCost
		totalCost := item.AvailableQty*item.CostPerUnit + params.QtyDelta*params.UnitCost
		if newQty > 0 {
			newCost = totalCost / newQty
		}
	}
	movement := Movement{
		ItemID:    item.ID,
		Type:      params.Type,
		QtyDelta:  params.QtyDelta,
		QtyBefore: item.AvailableQty,
		QtyAfter:  newQty,
		UnitCost:  unitCost,
		RefType:   params.RefType,
		RefID:     params.RefID,
		CreatedBy: params.Actor.ID,
		CreatedAt: time.Now().UTC(),
		Notes:     params.Notes,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	if err := tx.UpdateItemQuantity(ctx, item.ID, newQty, newCost); err != nil {
		return Movement{}, err
	}
	return movement, nil
}
