package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

// Order is immutable once placed apart from its status.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     string            `gorm:"column:owner_id;not null;index:ix_orders_owner_created,priority:1"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'placed'"`
	CancelledAt *time.Time        `gorm:"column:cancelled_at"`
	Items       []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime;index:ix_orders_owner_created,priority:2"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
