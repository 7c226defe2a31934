package stocktake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creamery-pos/creamery-pos/internal/platform/cache"
	"github.com/creamery-pos/creamery-pos/internal/shared"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockTake(ctx context.Context, id int64) (StockTake, error)
	ListStockTakes(ctx context.Context, filter ListFilter) ([]StockTake, error)
	ListItems(ctx context.Context, stockTakeID int64) ([]Item, error)
}

// TxRepository exposes transactional operations used by the workflow.
type TxRepository interface {
	InsertStockTake(ctx context.Context, st StockTake) (int64, error)
	GetStockTakeForUpdate(ctx context.Context, id int64) (StockTake, error)
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	SnapshotItems(ctx context.Context, stockTakeID int64) (int, error)
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, StockTake, error)
	UpdateItemCount(ctx context.Context, item Item) error
	SumCountedVariance(ctx context.Context, stockTakeID int64) (float64, error)
	UpdateTotalVariance(ctx context.Context, id int64, total float64) error
}

// AdjustmentCreator turns counted variances into pending adjustments. It is
// implemented by the adjustments module; the workflow never touches the
// ledger itself.
type AdjustmentCreator interface {
	CreateFromStockTake(ctx context.Context, input AdjustmentSeed) (string, error)
}

// AdjustmentSeed is one variance handed to the adjustments module.
type AdjustmentSeed struct {
	StockTakeID    int64
	StockTakeRef   string
	ItemID         int64
	ItemName       string
	QuantityBefore float64
	QuantityAfter  float64
	UnitCost       float64
	Actor          shared.Actor
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the stock-take workflow.
type Service struct {
	repo        RepositoryPort
	adjustments AdjustmentCreator
	audit       AuditPort
	cacheClient *redis.Client
	cacheTTL    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the service. cacheClient may be nil; reports are then
// always computed from the store.
func NewService(repo RepositoryPort, adjustments AdjustmentCreator, audit AuditPort, cacheClient *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		adjustments: adjustments,
		audit:       audit,
		cacheClient: cacheClient,
		cacheTTL:    15 * time.Minute,
		logger:      logger,
		now:         time.Now,
	}
}

// SetCacheTTL overrides how long completed variance reports stay cached.
func (s *Service) SetCacheTTL(d time.Duration) {
	if d > 0 {
		s.cacheTTL = d
	}
}

// Create persists a draft stock-take with no items yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (StockTake, error) {
	if err := input.Validate(); err != nil {
		return StockTake{}, err
	}
	st := StockTake{
		ReferenceNo: shared.NewReference("ST"),
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Status:      StatusDraft,
		InitiatedBy: input.Actor.ID,
		InitiatedAt: s.now().UTC(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertStockTake(ctx, st)
		if err != nil {
			return err
		}
		st.ID = id
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, input.Actor, "stocktake:create", st.ID, map[string]any{"reference_no": st.ReferenceNo})
	return st, nil
}

// Start transitions draft to in_progress and snapshots every active
// inventory item's quantity and cost. Counting reflects stock levels at the
// moment counting begins, not when the session was scheduled.
func (s *Service) Start(ctx context.Context, id int64, actor shared.Actor) (StockTake, error) {
	if !actor.Known() {
		return StockTake{}, shared.ErrActorRequired
	}
	var st StockTake
	var snapshotCount int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		st, err = tx.GetStockTakeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if st.Status != StatusDraft {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusInProgress, now); err != nil {
			return err
		}
		st.Status = StatusInProgress
		st.StartedAt = &now
		snapshotCount, err = tx.SnapshotItems(ctx, id)
		return err
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, actor, "stocktake:start", id, map[string]any{"items_snapshotted": snapshotCount})
	return st, nil
}

// RecordCount sets the physical quantity for one line and recomputes its
// variance. Only legal while the parent session is in progress.
func (s *Service) RecordCount(ctx context.Context, stockTakeItemID int64, physicalQty float64, notes string, actor shared.Actor) (Item, error) {
	if !actor.Known() {
		return Item{}, shared.ErrActorRequired
	}
	if physicalQty < 0 {
		return Item{}, ErrInvalidCount
	}
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, parent, err := tx.GetItemForUpdate(ctx, stockTakeItemID)
		if err != nil {
			return err
		}
		if parent.Status != StatusInProgress {
			return ErrInvalidState
		}
		now := s.now().UTC()
		item.PhysicalQty = &physicalQty
		item.VarianceQty = round2(physicalQty - item.SystemQty)
		item.VarianceValue = round2(item.VarianceQty * item.UnitCost)
		item.CountedBy = &actor.ID
		item.CountedAt = &now
		item.Notes = notes
		if err := tx.UpdateItemCount(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

// Complete transitions in_progress to completed and caches the total
// variance value. Lines never counted stay null and contribute zero.
func (s *Service) Complete(ctx context.Context, id int64, actor shared.Actor) (StockTake, error) {
	if !actor.Known() {
		return StockTake{}, shared.ErrActorRequired
	}
	var st StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		st, err = tx.GetStockTakeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if st.Status != StatusInProgress {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusCompleted, now); err != nil {
			return err
		}
		total, err := tx.SumCountedVariance(ctx, id)
		if err != nil {
			return err
		}
		total = round2(total)
		if err := tx.UpdateTotalVariance(ctx, id, total); err != nil {
			return err
		}
		st.Status = StatusCompleted
		st.CompletedAt = &now
		st.TotalVarianceValue = total
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, actor, "stocktake:complete", id, map[string]any{"total_variance_value": st.TotalVarianceValue})
	return st, nil
}

// Cancel terminates a draft or in-progress stock-take.
func (s *Service) Cancel(ctx context.Context, id int64, actor shared.Actor) (StockTake, error) {
	if !actor.Known() {
		return StockTake{}, shared.ErrActorRequired
	}
	var st StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		st, err = tx.GetStockTakeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if st.Status.Terminal() {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if err := tx.UpdateStatus(ctx, id, StatusCancelled, now); err != nil {
			return err
		}
		st.Status = StatusCancelled
		st.CancelledAt = &now
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	s.recordAudit(ctx, actor, "stocktake:cancel", id, nil)
	return st, nil
}

// Get fetches one stock-take.
func (s *Service) Get(ctx context.Context, id int64) (StockTake, error) {
	return s.repo.GetStockTake(ctx, id)
}

// List enumerates stock-takes.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]StockTake, error) {
	return s.repo.ListStockTakes(ctx, filter)
}

// Items lists the lines of one stock-take.
func (s *Service) Items(ctx context.Context, id int64) ([]Item, error) {
	if _, err := s.repo.GetStockTake(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, id)
}

// VarianceReport aggregates the stock-take without mutating anything.
// Completed reports are immutable and therefore cached.
func (s *Service) VarianceReport(ctx context.Context, id int64) (VarianceReport, error) {
	st, err := s.repo.GetStockTake(ctx, id)
	if err != nil {
		return VarianceReport{}, err
	}

	cacheKey := ""
	if st.Status == StatusCompleted && s.cacheClient != nil && st.CompletedAt != nil {
		cacheKey = fmt.Sprintf("stocktake:report:%d:%d", st.ID, st.CompletedAt.Unix())
		var cached VarianceReport
		if err := cache.GetJSON(ctx, s.cacheClient, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) && s.logger != nil {
			s.logger.Warn("variance report cache read", slog.Any("error", err))
		}
	}

	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return VarianceReport{}, err
	}
	report := buildReport(st, items)

	if cacheKey != "" {
		if err := cache.SetJSON(ctx, s.cacheClient, cacheKey, report, s.cacheTTL); err != nil && s.logger != nil {
			s.logger.Warn("variance report cache write", slog.Any("error", err))
		}
	}
	return report, nil
}

// CreateAdjustments emits one pending adjustment per counted line with a
// non-zero variance. The ledger is untouched until each adjustment is
// approved.
func (s *Service) CreateAdjustments(ctx context.Context, id int64, actor shared.Actor) ([]string, error) {
	if !actor.Known() {
		return nil, shared.ErrActorRequired
	}
	st, err := s.repo.GetStockTake(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status != StatusCompleted {
		return nil, ErrInvalidState
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	refs := []string{}
	for _, item := range items {
		if !item.Counted() || math.Abs(item.VarianceQty) < qtyEpsilon {
			continue
		}
		ref, err := s.adjustments.CreateFromStockTake(ctx, AdjustmentSeed{
			StockTakeID:    st.ID,
			StockTakeRef:   st.ReferenceNo,
			ItemID:         item.ItemID,
			ItemName:       item.ItemName,
			QuantityBefore: item.SystemQty,
			QuantityAfter:  *item.PhysicalQty,
			UnitCost:       item.UnitCost,
			Actor:          actor,
		})
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	s.recordAudit(ctx, actor, "stocktake:create_adjustments", id, map[string]any{"count": len(refs)})
	return refs, nil
}

func buildReport(st StockTake, items []Item) VarianceReport {
	report := VarianceReport{
		StockTakeID:        st.ID,
		ReferenceNo:        st.ReferenceNo,
		Status:             st.Status,
		TotalItems:         len(items),
		TotalVarianceValue: st.TotalVarianceValue,
		Lines:              []VarianceLine{},
	}
	total := 0.0
	for _, item := range items {
		if !item.Counted() {
			report.ItemsUncounted++
			continue
		}
		report.ItemsCounted++
		total += item.VarianceValue
		if math.Abs(item.VarianceQty) < qtyEpsilon {
			continue
		}
		report.ItemsWithVariance++
		if item.VarianceQty > 0 {
			report.PositiveVariances++
		} else {
			report.NegativeVariances++
		}
		report.Lines = append(report.Lines, VarianceLine{
			ItemID:        item.ItemID,
			ItemName:      item.ItemName,
			Unit:          string(item.Unit),
			SystemQty:     item.SystemQty,
			PhysicalQty:   *item.PhysicalQty,
			VarianceQty:   item.VarianceQty,
			UnitCost:      item.UnitCost,
			VarianceValue: item.VarianceValue,
		})
	}
	if st.Status != StatusCompleted {
		// Totals for running sessions reflect counts so far.
		report.TotalVarianceValue = round2(total)
	}
	return report
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "stock_take",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
