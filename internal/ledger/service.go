package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
)

// UnknownProductName labels stock failures for products that no longer exist.
const UnknownProductName = "Unknown"

// Service applies stock deltas. Every mutating call runs on the caller's
// transaction and never commits or rolls back on its own.
type Service interface {
	Deduct(ctx context.Context, tx *gorm.DB, movement Movement) (int, error)
	Restore(ctx context.Context, tx *gorm.DB, movement Movement) (int, error)
	Lock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
	History(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error)
}

// Movement describes one stock delta and what caused it.
type Movement struct {
	ProductID   uuid.UUID
	Amount      int
	Reason      enums.StockMovementReason
	ReferenceID *uuid.UUID
}

func (m Movement) validate() error {
	if m.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if m.Amount < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock movement amount must be at least 1").
			WithDetails(map[string]any{"amount": m.Amount})
	}
	if !m.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stock movement reason %q", m.Reason))
	}
	return nil
}

type service struct {
	repo    Repository
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
}

// NewService wires the stock ledger. metrics may be nil.
func NewService(repo Repository, m *metrics.CommerceMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, metrics: m, logg: logg}, nil
}

// InsufficientStock builds the caller-facing failure naming the product.
func InsufficientStock(product *models.Product, requested int) *pkgerrors.Error {
	name := UnknownProductName
	available := 0
	details := map[string]any{"requested": requested}
	if product != nil {
		name = product.Name
		available = product.Stock
		details["product_id"] = product.ID.String()
	}
	details["product"] = name
	details["available"] = available
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "Insufficient stock for product: "+name).WithDetails(details)
}

func (s *service) Deduct(ctx context.Context, tx *gorm.DB, movement Movement) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger requires a transaction")
	}
	if err := movement.validate(); err != nil {
		return 0, err
	}

	repo := s.repo.WithTx(tx)
	applied, err := repo.DecrementStock(ctx, movement.ProductID, movement.Amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct stock")
	}

	product, err := repo.FindProduct(ctx, movement.ProductID)
	if err != nil {
		if db.IsNotFound(err) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}

	if !applied {
		s.metrics.IncStockRejection(string(movement.Reason))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": movement.ProductID.String(),
			"requested":  movement.Amount,
			"available":  product.Stock,
			"reason":     movement.Reason,
		})
		s.logg.Warn(logCtx, "ledger.insufficient_stock")
		return 0, InsufficientStock(product, movement.Amount)
	}

	if err := s.record(ctx, repo, movement, -movement.Amount, product.Stock); err != nil {
		return 0, err
	}
	s.metrics.AddStockUnits("deducted", movement.Amount)
	return product.Stock, nil
}

func (s *service) Restore(ctx context.Context, tx *gorm.DB, movement Movement) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger requires a transaction")
	}
	if err := movement.validate(); err != nil {
		return 0, err
	}

	repo := s.repo.WithTx(tx)
	applied, err := repo.IncrementStock(ctx, movement.ProductID, movement.Amount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	if !applied {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	product, err := repo.FindProduct(ctx, movement.ProductID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}

	if err := s.record(ctx, repo, movement, movement.Amount, product.Stock); err != nil {
		return 0, err
	}
	s.metrics.AddStockUnits("restored", movement.Amount)
	return product.Stock, nil
}

func (s *service) Lock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger requires a transaction")
	}
	product, err := s.repo.WithTx(tx).LockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
	}
	return product, nil
}

func (s *service) History(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	movements, err := s.repo.ListMovements(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return movements, nil
}

func (s *service) record(ctx context.Context, repo Repository, movement Movement, delta, stockAfter int) error {
	row := &models.StockMovement{
		ProductID:   movement.ProductID,
		Delta:       delta,
		Reason:      movement.Reason,
		ReferenceID: movement.ReferenceID,
		StockAfter:  stockAfter,
	}
	if err := repo.CreateMovement(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
	}
	return nil
}
