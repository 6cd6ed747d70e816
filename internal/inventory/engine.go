package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// Delta is one signed quantity adjustment for a product's inventory row.
// Positive deltas restock, negative deltas consume.
type Delta struct {
	ProductID uuid.UUID
	Quantity  int
}

// ApplyDeltas applies every delta in one all-or-nothing unit inside tx.
//
// Validation runs first across the whole batch: every touched row is loaded
// (row-locked on Postgres) and the projected quantity is checked against zero,
// accumulating duplicates of the same product along the way. Only if every
// entry passes does the apply phase run. Any failure aborts the batch; the
// caller's transaction rollback restores prior state.
func ApplyDeltas(ctx context.Context, tx *gorm.DB, deltas []Delta) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory mutation")
	}
	if len(deltas) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one inventory delta is required")
	}

	sorted := make([]Delta, len(deltas))
	copy(sorted, deltas)
	// Lock rows in a stable order so overlapping batches cannot deadlock.
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].ProductID.String(), sorted[j].ProductID.String()) < 0
	})

	projected := make(map[uuid.UUID]int, len(sorted))
	for _, delta := range sorted {
		current, seen := projected[delta.ProductID]
		if !seen {
			item, err := lockInventoryRow(ctx, tx, delta.ProductID)
			if err != nil {
				return err
			}
			current = item.Quantity
		}

		next := current + delta.Quantity
		if next < 0 {
			return pkgerrors.New(
				pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for product %s", delta.ProductID),
			).WithDetails(map[string]any{
				"product_id": delta.ProductID.String(),
				"available":  current,
				"requested":  -delta.Quantity,
			})
		}
		projected[delta.ProductID] = next
	}

	for _, delta := range sorted {
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_items
			SET quantity = quantity + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ?
		`, delta.Quantity, delta.ProductID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "apply inventory delta")
		}
	}

	return nil
}

// lockInventoryRow loads the inventory row for the product, holding a FOR
// UPDATE lock on Postgres. SQLite has no row locks; its single-writer model
// covers the test path.
func lockInventoryRow(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.InventoryItem, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item models.InventoryItem
	if err := q.First(&item, "product_id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(
				pkgerrors.CodeNotFound,
				fmt.Sprintf("no inventory row for product %s", productID),
			)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory row")
	}
	return &item, nil
}
