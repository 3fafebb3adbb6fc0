package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)

// Repository persists stock changes and the movement trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DecrementStock(ctx context.Context, productID uuid.UUID, amount int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, amount int) (bool, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	CreateMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// DecrementStock subtracts amount only while the row still holds at least that
// much; false means no row matched.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, amount int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, amount).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, amount int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProduct reads the product row, holding a row lock until the surrounding
// transaction ends on dialects that support it.
func (r *repository) LockProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	query := r.db.WithContext(ctx)
	if db.SupportsRowLocks(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var product models.Product
	if err := query.First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
