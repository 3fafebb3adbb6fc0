package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

// StockMovement is an append-only record of one stock delta applied by the ledger.
type StockMovement struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index"`
	Delta       int                       `gorm:"column:delta;not null"`
	Reason      enums.StockMovementReason `gorm:"column:reason;type:stock_movement_reason;not null"`
	ReferenceID *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	StockAfter  int                       `gorm:"column:stock_after;not null"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
