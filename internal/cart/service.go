package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	product "github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	Deduct(ctx context.Context, tx *gorm.DB, movement ledger.Movement) (int, error)
	Restore(ctx context.Context, tx *gorm.DB, movement ledger.Movement) (int, error)
}

// Service owns the cart aggregate. Every mutation moves stock through the
// ledger in the same transaction as the item change.
type Service interface {
	Add(ctx context.Context, ownerID string, input AddItemInput) (*ItemResult, error)
	UpdateQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, quantity int) (*ItemResult, error)
	RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (*ItemResult, error)
	Index(ctx context.Context, ownerID string) (*View, error)
}

type service struct {
	repo     Repository
	products product.Repository
	ledger   stockLedger
	tx       txRunner
	metrics  *metrics.CommerceMetrics
	logg     *logger.Logger
}

// NewService wires the cart service. metrics may be nil.
func NewService(repo Repository, products product.Repository, stock stockLedger, tx txRunner, m *metrics.CommerceMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		products: products,
		ledger:   stock,
		tx:       tx,
		metrics:  m,
		logg:     logg,
	}, nil
}

func (s *service) Add(ctx context.Context, ownerID string, input AddItemInput) (result *ItemResult, err error) {
	defer func() { s.metrics.ObserveCartOp("add", err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateAdd(input); err != nil {
		return nil, err
	}
	if _, err := s.products.FindByID(ctx, input.ProductID); err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "The selected product id is invalid.").
				WithDetails(map[string]any{"product_id": "must reference an existing product"})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindOrCreate(ctx, ownerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		item, err := repo.FindItemByProduct(ctx, cart.ID, input.ProductID)
		if err != nil && !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		var refID *uuid.UUID
		if item != nil {
			refID = &item.ID
		}
		remaining, err := s.ledger.Deduct(ctx, tx, ledger.Movement{
			ProductID:   input.ProductID,
			Amount:      input.Quantity,
			Reason:      enums.StockReasonCartAdd,
			ReferenceID: refID,
		})
		if err != nil {
			return err
		}

		if item != nil {
			ok, err := repo.UpdateItemQuantity(ctx, item.ID, item.Quantity, item.Quantity+input.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			if !ok {
				return cartChanged()
			}
			item.Quantity += input.Quantity
		} else {
			item = &models.CartItem{CartID: cart.ID, ProductID: input.ProductID, Quantity: input.Quantity}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
		}

		stocked, err := s.products.WithTx(tx).FindByID(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		result = &ItemResult{
			ItemID:         item.ID,
			ProductID:      input.ProductID,
			ProductName:    stocked.Name,
			Quantity:       item.Quantity,
			RemainingStock: remaining,
			Message:        messageItemAdded,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOwner(ctx, ownerID), map[string]any{
		"product_id": input.ProductID.String(),
		"quantity":   input.Quantity,
		"item_id":    result.ItemID.String(),
	})
	s.logg.Info(logCtx, "cart.item_added")
	return result, nil
}

func (s *service) UpdateQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, quantity int) (result *ItemResult, err error) {
	defer func() { s.metrics.ObserveCartOp("update", err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "The quantity must be at least 1.").
			WithDetails(map[string]any{"quantity": "must be at least 1"})
	}

	var previous int
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadOwnedItem(ctx, repo, ownerID, itemID)
		if err != nil {
			return err
		}
		previous = item.Quantity

		remaining := 0
		if item.Product != nil {
			remaining = item.Product.Stock
		}
		movement := ledger.Movement{ProductID: item.ProductID, Reason: enums.StockReasonCartUpdate, ReferenceID: &item.ID}
		switch diff := quantity - item.Quantity; {
		case diff > 0:
			movement.Amount = diff
			if remaining, err = s.ledger.Deduct(ctx, tx, movement); err != nil {
				return err
			}
		case diff < 0:
			movement.Amount = -diff
			if remaining, err = s.ledger.Restore(ctx, tx, movement); err != nil {
				return err
			}
		}

		if quantity != item.Quantity {
			ok, err := repo.UpdateItemQuantity(ctx, item.ID, item.Quantity, quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			if !ok {
				return cartChanged()
			}
		}
		result = &ItemResult{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			ProductName:    productName(item),
			Quantity:       quantity,
			RemainingStock: remaining,
			Message:        messageItemUpdated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOwner(ctx, ownerID), map[string]any{
		"item_id":      itemID.String(),
		"old_quantity": previous,
		"new_quantity": quantity,
	})
	s.logg.Info(logCtx, "cart.item_updated")
	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (result *ItemResult, err error) {
	defer func() { s.metrics.ObserveCartOp("remove", err) }()

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadOwnedItem(ctx, repo, ownerID, itemID)
		if err != nil {
			return err
		}

		remaining, err := s.ledger.Restore(ctx, tx, ledger.Movement{
			ProductID:   item.ProductID,
			Amount:      item.Quantity,
			Reason:      enums.StockReasonCartRemove,
			ReferenceID: &item.ID,
		})
		if err != nil {
			return err
		}
		ok, err := repo.DeleteItem(ctx, item.ID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		if !ok {
			return cartChanged()
		}
		result = &ItemResult{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			ProductName:    productName(item),
			Quantity:       0,
			RemainingStock: remaining,
			Message:        messageItemRemoved,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(s.logg.WithOwner(ctx, ownerID), "item_id", itemID.String()), "cart.item_removed")
	return result, nil
}

func (s *service) Index(ctx context.Context, ownerID string) (*View, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByOwner(ctx, ownerID, false)
	if err != nil {
		if db.IsNotFound(err) {
			return newView(nil), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return newView(cart), nil
}

func (s *service) loadOwnedItem(ctx context.Context, repo Repository, ownerID string, itemID uuid.UUID) (*models.CartItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item, err := repo.FindOwnedItem(ctx, ownerID, itemID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	return item, nil
}

// cartChanged reports a conditional item write that matched no row, which rolls
// back the stock movement made earlier in the same transaction.
func cartChanged() error {
	return pkgerrors.New(pkgerrors.CodeTransaction, messageCartChanged)
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "cart owner is required")
	}
	return nil
}

func validateAdd(input AddItemInput) error {
	details := map[string]any{}
	if input.ProductID == uuid.Nil {
		details["product_id"] = "is required"
	}
	if input.Quantity < 1 {
		details["quantity"] = "must be at least 1"
	}
	if len(details) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func productName(item *models.CartItem) string {
	if item.Product == nil {
		return ledger.UnknownProductName
	}
	return item.Product.Name
}
