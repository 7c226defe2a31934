package adjustments

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/stocktake"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (StockAdjustment, error)
	GetByReference(ctx context.Context, refNo string) (StockAdjustment, error)
	List(ctx context.Context, filter ListFilter) ([]StockAdjustment, error)
}

// TxRepository exposes transactional operations on adjustments. Ledger
// hands out a movement-posting view of the same transaction so an approval
// and its movement commit together.
type TxRepository interface {
	Insert(ctx context.Context, adj StockAdjustment) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (StockAdjustment, error)
	SetStatus(ctx context.Context, id int64, status Status, reviewedBy *int64, note string, at *time.Time) error
	Ledger() ledger.TxRepository
}

// LedgerPort is the slice of the inventory ledger the approval gate needs.
type LedgerPort interface {
	GetItem(ctx context.Context, id int64) (ledger.Item, error)
	ApplyAdjustmentTx(ctx context.Context, tx ledger.TxRepository, app ledger.AdjustmentApplication) (ledger.Movement, error)
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the adjustment approval gate. An adjustment only reaches the
// ledger after a reviewer other than the requester approves it.
type Service struct {
	repo      RepositoryPort
	ledger    LedgerPort
	approvals ApprovalPort
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, approvals ApprovalPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerPort,
		approvals: approvals,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

// Create raises a manual pending adjustment against an item's current
// quantity. Nothing moves in the ledger yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (StockAdjustment, error) {
	if err := input.Validate(); err != nil {
		return StockAdjustment{}, err
	}
	item, err := s.ledger.GetItem(ctx, input.ItemID)
	if err != nil {
		return StockAdjustment{}, err
	}
	delta := round2(input.QuantityAfter - item.AvailableQty)
	if math.Abs(delta) < qtyEpsilon {
		return StockAdjustment{}, ErrNoChange
	}
	adj := StockAdjustment{
		ReferenceNo:    shared.NewReference("ADJ"),
		ItemID:         item.ID,
		ItemName:       item.Name,
		AdjustmentType: typeFor(delta, SourceManual),
		QuantityBefore: item.AvailableQty,
		QuantityAfter:  input.QuantityAfter,
		QuantityDelta:  delta,
		UnitCost:       item.CostPerUnit,
		Reason:         input.Reason,
		SourceType:     SourceManual,
		Status:         StatusPending,
		RequestedBy:    input.Actor.ID,
		RequestedAt:    s.now().UTC(),
	}
	if err := s.insert(ctx, &adj); err != nil {
		return StockAdjustment{}, err
	}
	s.recordApproval(ctx, adj.ReferenceNo, input.Actor.ID, shared.ApprovalSubmit, input.Reason)
	s.recordAudit(ctx, input.Actor, "adjustment:create", adj, nil)
	return adj, nil
}

// CreateFromStockTake raises a pending adjustment for one counted variance.
// It implements the creator port the stock-take workflow depends on.
func (s *Service) CreateFromStockTake(ctx context.Context, seed stocktake.AdjustmentSeed) (string, error) {
	delta := round2(seed.QuantityAfter - seed.QuantityBefore)
	if math.Abs(delta) < qtyEpsilon {
		return "", ErrNoChange
	}
	if !seed.Actor.Known() {
		return "", shared.ErrActorRequired
	}
	adj := StockAdjustment{
		ReferenceNo:    shared.NewReference("ADJ"),
		ItemID:         seed.ItemID,
		ItemName:       seed.ItemName,
		AdjustmentType: typeFor(delta, SourceStockTake),
		QuantityBefore: seed.QuantityBefore,
		QuantityAfter:  seed.QuantityAfter,
		QuantityDelta:  delta,
		UnitCost:       seed.UnitCost,
		Reason:         fmt.Sprintf("variance from stock take %s", seed.StockTakeRef),
		SourceType:     SourceStockTake,
		SourceRef:      seed.StockTakeRef,
		Status:         StatusPending,
		RequestedBy:    seed.Actor.ID,
		RequestedAt:    s.now().UTC(),
	}
	if err := s.insert(ctx, &adj); err != nil {
		return "", err
	}
	s.recordApproval(ctx, adj.ReferenceNo, seed.Actor.ID, shared.ApprovalSubmit, adj.Reason)
	s.recordAudit(ctx, seed.Actor, "adjustment:create", adj, map[string]any{"stock_take_ref": seed.StockTakeRef})
	return adj.ReferenceNo, nil
}

// Approve flips a pending adjustment to approved and applies it to the
// ledger in the same transaction. The requester may not review their own
// adjustment. A ledger rejection rolls the whole approval back; the
// adjustment stays pending and a reviewer can retry after fixing the stock
// position.
func (s *Service) Approve(ctx context.Context, id int64, note string, actor shared.Actor) (StockAdjustment, error) {
	if !actor.Known() {
		return StockAdjustment{}, shared.ErrActorRequired
	}
	if !actor.Role.CanApprove() {
		return StockAdjustment{}, shared.ErrPrivilege
	}
	var adj StockAdjustment
	var movement ledger.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = s.flipStatus(ctx, tx, id, StatusApproved, note, actor)
		if err != nil {
			return err
		}
		movement, err = s.ledger.ApplyAdjustmentTx(ctx, tx.Ledger(), ledger.AdjustmentApplication{
			ReferenceNo:    adj.ReferenceNo,
			ItemID:         adj.ItemID,
			QuantityBefore: adj.QuantityBefore,
			QuantityAfter:  adj.QuantityAfter,
			Actor:          actor,
			Reason:         adj.Reason,
		})
		if err != nil {
			return fmt.Errorf("apply adjustment %s: %w", adj.ReferenceNo, err)
		}
		return nil
	})
	if err != nil {
		return StockAdjustment{}, err
	}

	s.recordApproval(ctx, adj.ReferenceNo, actor.ID, shared.ApprovalApprove, note)
	s.recordAudit(ctx, actor, "adjustment:approve", adj, map[string]any{"movement_id": movement.ID})
	return adj, nil
}

// Reject flips a pending adjustment to rejected. The ledger is untouched.
func (s *Service) Reject(ctx context.Context, id int64, note string, actor shared.Actor) (StockAdjustment, error) {
	if !actor.Known() {
		return StockAdjustment{}, shared.ErrActorRequired
	}
	if !actor.Role.CanApprove() {
		return StockAdjustment{}, shared.ErrPrivilege
	}
	var adj StockAdjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		adj, err = s.flipStatus(ctx, tx, id, StatusRejected, note, actor)
		return err
	})
	if err != nil {
		return StockAdjustment{}, err
	}
	s.recordApproval(ctx, adj.ReferenceNo, actor.ID, shared.ApprovalReject, note)
	s.recordAudit(ctx, actor, "adjustment:reject", adj, nil)
	return adj, nil
}

// Get fetches one adjustment.
func (s *Service) Get(ctx context.Context, id int64) (StockAdjustment, error) {
	return s.repo.Get(ctx, id)
}

// GetByReference resolves an adjustment by its reference number.
func (s *Service) GetByReference(ctx context.Context, refNo string) (StockAdjustment, error) {
	return s.repo.GetByReference(ctx, refNo)
}

// List enumerates adjustments.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockAdjustment, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) insert(ctx context.Context, adj *StockAdjustment) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, *adj)
		if err != nil {
			return err
		}
		adj.ID = id
		return nil
	})
}

// flipStatus locks the adjustment row, enforces the pending-only and
// no-self-review rules, then records the review outcome.
func (s *Service) flipStatus(ctx context.Context, tx TxRepository, id int64, target Status, note string, actor shared.Actor) (StockAdjustment, error) {
	adj, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return StockAdjustment{}, err
	}
	if adj.Status != StatusPending {
		return StockAdjustment{}, ErrInvalidState
	}
	if adj.RequestedBy == actor.ID {
		return StockAdjustment{}, ErrSelfApproval
	}
	now := s.now().UTC()
	if err := tx.SetStatus(ctx, id, target, &actor.ID, note, &now); err != nil {
		return StockAdjustment{}, err
	}
	adj.Status = target
	adj.ReviewedBy = &actor.ID
	adj.ReviewedAt = &now
	adj.ReviewNote = note
	return adj, nil
}

func (s *Service) recordApproval(ctx context.Context, refNo string, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "adjustments",
		RefNo:   refNo,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record approval", slog.String("ref_no", refNo), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, adj StockAdjustment, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["reference_no"] = adj.ReferenceNo
	meta["item_id"] = adj.ItemID
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "stock_adjustment",
		EntityID: fmt.Sprintf("%d", adj.ID),
		Meta:     meta,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
