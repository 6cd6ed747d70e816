package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Order is the customer order header. Lines are immutable once created;
// shipment flips Status but never touches the lines.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name      string            `gorm:"column:name;not null"`
	Address   string            `gorm:"column:address;not null"`
	Note      *string           `gorm:"column:note"`
	Status    enums.OrderStatus `gorm:"column:status;not null;default:pending"`
	Lines     []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
