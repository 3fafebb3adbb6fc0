package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)


// Repository persists carts and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrCreate(ctx context.Context, ownerID string) (*models.Cart, error)
	FindByOwner(ctx context.Context, ownerID string, forUpdate bool) (*models.Cart, error)
	FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	FindOwnedItem(ctx context.Context, ownerID string, itemID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, from, to int) (bool, error)
	DeleteItem(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error)
	FindStaleCartIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	DeleteStaleItem(ctx context.Context, item models.CartItem, cutoff time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOrCreate inserts the owner's cart unless one already exists and returns
// the stored row locked for the rest of the transaction. Concurrent first adds
// converge on the unique owner index.
func (r *repository) FindOrCreate(ctx context.Context, ownerID string) (*models.Cart, error) {
	candidate := models.Cart{OwnerID: ownerID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "owner_id"}}, DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := lockCartRow(r.db.WithContext(ctx)).Where("owner_id = ?", ownerID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByOwner loads the cart with its items and their products, oldest item
// first. forUpdate locks the cart row on dialects that support it.
func (r *repository) FindByOwner(ctx context.Context, ownerID string, forUpdate bool) (*models.Cart, error) {
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = lockCartRow(query)
	}
	var cart models.Cart
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("cart_items.created_at ASC").Order("cart_items.id ASC")
		}).
		Preload("Items.Product").
		Where("owner_id = ?", ownerID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindOwnedItem loads an item only when it sits in the owner's cart and locks
// that cart row.
func (r *repository) FindOwnedItem(ctx context.Context, ownerID string, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := lockCartRow(r.db.WithContext(ctx)).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.owner_id = ?", itemID, ownerID).
		Preload("Product").
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Omit("Product").Create(item).Error
}

// UpdateItemQuantity moves an item from one quantity to another and reports
// false when the stored quantity no longer equals from.
func (r *repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, from, to int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ? AND quantity = ?", itemID, from).
		Update("quantity", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteItem removes the item only while it still holds quantity units.
func (r *repository) DeleteItem(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND quantity = ?", itemID, quantity).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindStaleCartIDs returns carts holding items none of which changed since
// cutoff, least recently touched first.
func (r *repository) FindStaleCartIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Group("cart_id").
		Having("MAX(updated_at) < ?", cutoff).
		Order("MAX(updated_at) ASC").
		Limit(limit).
		Pluck("cart_id", &ids).Error
	return ids, err
}

func (r *repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// DeleteStaleItem removes the item only if it still holds the same quantity and
// has not been touched since cutoff. It reports whether a row was removed.
func (r *repository) DeleteStaleItem(ctx context.Context, item models.CartItem, cutoff time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND quantity = ? AND updated_at < ?", item.ID, item.Quantity, cutoff).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func lockCartRow(query *gorm.DB) *gorm.DB {
	if !db.SupportsRowLocks(query) {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "carts"}})
}
