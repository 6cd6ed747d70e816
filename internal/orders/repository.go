package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
)

// Repository wires order persistence helpers.
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

// FindByID loads the order with its lines.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Create inserts the order header and its lines in one go.
func (r *Repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// List returns all orders with their lines, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Order, error) {
	var result []models.Order
	if err := r.db.WithContext(ctx).Preload("Lines").Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ProductNames resolves product ids to names for order views. Products deleted
// after the order was placed simply drop out of the map.
func (r *Repository) ProductNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	var rows []struct {
		ID   uuid.UUID `gorm:"column:id"`
		Name string    `gorm:"column:name"`
	}
	err := r.db.WithContext(ctx).
		Table("products").
		Select("id, name").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// UpdateStatus transitions the order status, guarded by the expected current
// status so a concurrent transition loses cleanly.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// Delete removes the order. Lines cascade at the DB level; the sqlite test
// path has no FK enforcement, so the cascade is issued explicitly inside the
// same transaction.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := r.db.WithContext(ctx).Delete(&models.OrderLine{}, "order_id = ?", id).Error; err != nil {
		return 0, err
	}
	res := r.db.WithContext(ctx).Delete(&models.Order{}, "id = ?", id)
	return res.RowsAffected, res.Error
}
