package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RestockResult reports the row a restock landed on.
type RestockResult struct {
	ItemID  uuid.UUID
	Created bool
}

// Service exposes inventory management operations.
type Service interface {
	BulkAdjust(ctx context.Context, deltas []Delta) error
	Restock(ctx context.Context, productID uuid.UUID, quantity int) (*RestockResult, error)
	SetQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	List(ctx context.Context) ([]Row, error)
	Delete(ctx context.Context, itemID uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService constructs an inventory service instance.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// BulkAdjust applies a batch of signed deltas atomically.
func (s *service) BulkAdjust(ctx context.Context, deltas []Delta) error {
	if len(deltas) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "updates must contain at least one entry")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return ApplyDeltas(ctx, tx, deltas)
	})
}

// Restock adds quantity to the product's inventory row, creating the row when
// the product has none yet. Quantities below one are coerced up to one.
func (s *service) Restock(ctx context.Context, productID uuid.UUID, quantity int) (*RestockResult, error) {
	if quantity < 1 {
		quantity = 1
	}

	var result RestockResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).First(&models.Product{}, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}

		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByProductID(ctx, productID)
		switch {
		case err == nil:
			if aerr := ApplyDeltas(ctx, tx, []Delta{{ProductID: productID, Quantity: quantity}}); aerr != nil {
				return aerr
			}
			result = RestockResult{ItemID: existing.ID}
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			item := &models.InventoryItem{ProductID: productID, Quantity: quantity}
			if _, cerr := repo.Create(ctx, item); cerr != nil {
				// A concurrent restock may have created the row between the
				// lookup and the insert.
				if pkgdb.IsUniqueViolation(cerr, "product_id") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, cerr,
						fmt.Sprintf("inventory row for product %s already exists", productID))
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, cerr, "create inventory row")
			}
			result = RestockResult{ItemID: item.ID, Created: true}
			return nil

		default:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory row")
		}
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetQuantity overwrites a row's quantity with an absolute positive value.
func (s *service) SetQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer")
	}
	affected, err := s.repo.SetQuantity(ctx, itemID, quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set inventory quantity")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory row %s not found", itemID))
	}
	return nil
}

// List returns every inventory row joined with its product, newest first.
func (s *service) List(ctx context.Context) ([]Row, error) {
	rows, err := s.repo.ListWithProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory")
	}
	return rows, nil
}

// Delete removes one inventory row.
func (s *service) Delete(ctx context.Context, itemID uuid.UUID) error {
	affected, err := s.repo.Delete(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete inventory row")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory row %s not found", itemID))
	}
	return nil
}
