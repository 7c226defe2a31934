package deduction

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/platform/db"
	"github.com/creamery-pos/creamery-pos/internal/recipes"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/units"
)

// StockSource resolves an ingredient name to a deductible holding. Sources
// are consulted in order; ErrNoStock moves resolution to the next tier.
type StockSource interface {
	Resolve(ctx context.Context, name string) (Stock, error)
}

// Stock is one resolved holding. Quantities passed to Deduct are already
// converted to the holding's own unit.
type Stock interface {
	Unit() units.Unit
	SourceName() string
	Deduct(ctx context.Context, qty float64, ref Reference, actor shared.Actor) (DeductedLine, error)
}

// LedgerPort is the slice of the inventory ledger the primary source needs.
type LedgerPort interface {
	FindItemByName(ctx context.Context, nameKey string) (ledger.Item, error)
	Consume(ctx context.Context, input ledger.ConsumeInput) (ledger.Movement, error)
}

// InventoryBackedSource resolves ingredients against live inventory items
// by folded name. This is the primary tier.
type InventoryBackedSource struct {
	ledger LedgerPort
}

// NewInventoryBackedSource constructs the primary source.
func NewInventoryBackedSource(ledgerPort LedgerPort) *InventoryBackedSource {
	return &InventoryBackedSource{ledger: ledgerPort}
}

// Resolve finds an active inventory item whose folded name matches.
func (s *InventoryBackedSource) Resolve(ctx context.Context, name string) (Stock, error) {
	item, err := s.ledger.FindItemByName(ctx, recipes.FoldName(name))
	if err != nil {
		if errors.Is(err, ledger.ErrItemNotFound) {
			return nil, ErrNoStock
		}
		return nil, err
	}
	return &inventoryStock{ledger: s.ledger, item: item, ingredient: name}, nil
}

type inventoryStock struct {
	ledger     LedgerPort
	item       ledger.Item
	ingredient string
}

func (s *inventoryStock) Unit() units.Unit { return s.item.Unit }

func (s *inventoryStock) SourceName() string { return "inventory" }

func (s *inventoryStock) Deduct(ctx context.Context, qty float64, ref Reference, actor shared.Actor) (DeductedLine, error) {
	movement, err := s.ledger.Consume(ctx, ledger.ConsumeInput{
		ItemID:   s.item.ID,
		Quantity: qty,
		Type:     ledger.MovementSale,
		RefType:  ref.Type,
		RefID:    ref.ID,
		Actor:    actor,
		Notes:    fmt.Sprintf("sale deduction: %s", s.ingredient),
	})
	if err != nil {
		return DeductedLine{}, err
	}
	return DeductedLine{
		Ingredient: s.ingredient,
		ItemID:     s.item.ID,
		Quantity:   qty,
		Unit:       string(s.item.Unit),
		Source:     s.SourceName(),
		MovementID: movement.ID,
	}, nil
}

// LegacyBatchBackedSource drains production batches recorded before
// item-level tracking existed. Batches deplete oldest first. This is the
// secondary tier and will disappear once the legacy rows run dry.
type LegacyBatchBackedSource struct {
	pool *pgxpool.Pool
}

// NewLegacyBatchBackedSource constructs the secondary source.
func NewLegacyBatchBackedSource(pool *pgxpool.Pool) *LegacyBatchBackedSource {
	return &LegacyBatchBackedSource{pool: pool}
}

// Resolve reports whether any legacy batch still holds the ingredient.
func (s *LegacyBatchBackedSource) Resolve(ctx context.Context, name string) (Stock, error) {
	nameKey := recipes.FoldName(name)
	var unit string
	err := s.pool.QueryRow(ctx, `SELECT unit FROM legacy_production_batches
WHERE name_key=$1 AND remaining_qty > 0
ORDER BY produced_at ASC
LIMIT 1`, nameKey).Scan(&unit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoStock
		}
		return nil, err
	}
	return &legacyStock{pool: s.pool, nameKey: nameKey, ingredient: name, unit: units.Unit(unit)}, nil
}

type legacyStock struct {
	pool       *pgxpool.Pool
	nameKey    string
	ingredient string
	unit       units.Unit
}

func (s *legacyStock) Unit() units.Unit { return s.unit }

func (s *legacyStock) SourceName() string { return "legacy_batch" }

// Deduct drains batches FIFO inside one transaction. The whole quantity
// must be covered or nothing is taken.
func (s *legacyStock) Deduct(ctx context.Context, qty float64, ref Reference, actor shared.Actor) (DeductedLine, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, remaining_qty FROM legacy_production_batches
WHERE name_key=$1 AND remaining_qty > 0
ORDER BY produced_at ASC, id ASC
FOR UPDATE`, s.nameKey)
		if err != nil {
			return err
		}
		type batch struct {
			id        int64
			remaining float64
		}
		batches := []batch{}
		for rows.Next() {
			var b batch
			if err := rows.Scan(&b.id, &b.remaining); err != nil {
				rows.Close()
				return err
			}
			batches = append(batches, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		total := 0.0
		for _, b := range batches {
			total += b.remaining
		}
		if total < qty {
			return ledger.ErrInsufficientStock
		}

		left := qty
		for _, b := range batches {
			if left <= 0 {
				break
			}
			take := b.remaining
			if take > left {
				take = left
			}
			if _, err := tx.Exec(ctx, `UPDATE legacy_production_batches
SET remaining_qty = remaining_qty - $2, depleted_by = $3, depleted_ref = $4, updated_at = NOW()
WHERE id = $1`, b.id, take, actor.ID, ref.ID); err != nil {
				return err
			}
			left -= take
		}
		return nil
	})
	if err != nil {
		return DeductedLine{}, err
	}
	return DeductedLine{
		Ingredient: s.ingredient,
		Quantity:   qty,
		Unit:       string(s.unit),
		Source:     s.SourceName(),
	}, nil
}
