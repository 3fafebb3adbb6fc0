package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

// Repository persists orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindOwned(ctx context.Context, ownerID string, orderID uuid.UUID, forUpdate bool) (*models.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, cancelledAt *time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindOwned loads an order with its items when it belongs to ownerID. With
// forUpdate the order row stays locked until the transaction ends on Postgres.
func (r *repository) FindOwned(ctx context.Context, ownerID string, orderID uuid.UUID, forUpdate bool) (*models.Order, error) {
	query := r.db.WithContext(ctx)
	if forUpdate && db.SupportsRowLocks(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "orders"}})
	}
	var order models.Order
	err := query.
		Preload("Items", orderItemsByCreation).
		Where("id = ? AND owner_id = ?", orderID, ownerID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByOwner returns the owner's orders, most recent first.
func (r *repository) ListByOwner(ctx context.Context, ownerID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByCreation).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, cancelledAt *time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if cancelledAt != nil {
		updates["cancelled_at"] = *cancelledAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func orderItemsByCreation(tx *gorm.DB) *gorm.DB {
	return tx.Order("order_items.created_at ASC").Order("order_items.id ASC")
}
