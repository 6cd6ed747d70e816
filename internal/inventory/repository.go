package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
)

// Row is the read shape for inventory listings: one inventory row joined with
// the product it tracks.
type Row struct {
	ID        uuid.UUID `gorm:"column:id"`
	ProductID uuid.UUID `gorm:"column:product_id"`
	Name      string    `gorm:"column:name"`
	Note      *string   `gorm:"column:note"`
	Quantity  int       `gorm:"column:quantity"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// Repository wires inventory persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads one inventory row by its id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByProductID loads the inventory row tracking the given product.
func (r *Repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new inventory row.
func (r *Repository) Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// ListWithProducts returns all inventory rows joined with their product,
// newest first.
func (r *Repository) ListWithProducts(ctx context.Context) ([]Row, error) {
	var rows []Row
	err := r.db.WithContext(ctx).
		Table("inventory_items AS i").
		Select("i.id, i.product_id, p.name, p.note, i.quantity, i.created_at").
		Joins("JOIN products p ON p.id = i.product_id").
		Order("i.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SetQuantity overwrites the absolute quantity of one row. Returns the number
// of rows touched so callers can distinguish a missing row.
func (r *Repository) SetQuantity(ctx context.Context, id uuid.UUID, quantity int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ?", id).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

// Delete removes one inventory row by id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&models.InventoryItem{}, "id = ?", id)
	return res.RowsAffected, res.Error
}
