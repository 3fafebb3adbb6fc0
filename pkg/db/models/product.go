package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable catalog entry. Stock is only mutated through the stock ledger.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Description *string         `gorm:"column:description"`
	ImageURL    *string         `gorm:"column:image_url"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;check:chk_products_price,price >= 0"`
	Stock       int             `gorm:"column:stock;not null;default:0;check:chk_products_stock,stock >= 0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
