package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/internal/orders"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox/payloads"
)

const (
	messageOrderPlaced    = "Order placed successfully!"
	messageEmptyCart      = "Your cart is empty."
	messageCheckoutFailed = "Checkout failed. Please try again."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
}

// Service converts an owner's cart into an order.
type Service interface {
	Checkout(ctx context.Context, ownerID string) (*Result, error)
}

// Result is the placed order plus the confirmation message.
type Result struct {
	Order   orders.OrderDTO `json:"order"`
	Message string          `json:"message"`
}

type service struct {
	carts   cart.Repository
	orders  orders.Repository
	ledger  stockLocker
	outbox  outboxPublisher
	tx      txRunner
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
}

// NewService wires checkout. metrics may be nil.
func NewService(carts cart.Repository, orderRepo orders.Repository, stock stockLocker, publisher outboxPublisher, tx txRunner, m *metrics.CommerceMetrics, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		carts:   carts,
		orders:  orderRepo,
		ledger:  stock,
		outbox:  publisher,
		tx:      tx,
		metrics: m,
		logg:    logg,
	}, nil
}

// Checkout re-validates every cart line against locked product rows, snapshots
// the lines into a placed order and empties the cart. Stock was already taken
// when the items entered the cart and is not deducted again.
func (s *service) Checkout(ctx context.Context, ownerID string) (result *Result, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveCheckout(time.Since(started), err) }()

	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "order owner is required")
	}
	logCtx := s.logg.WithOwner(ctx, ownerID)

	var placed *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		current, err := cartRepo.FindByOwner(ctx, ownerID, true)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, messageEmptyCart)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(current.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, messageEmptyCart)
		}

		lines, err := s.revalidate(ctx, tx, current.Items)
		if err != nil {
			return err
		}

		order := &models.Order{
			OwnerID: ownerID,
			Status:  enums.OrderStatusPlaced,
			Items:   lines,
		}
		total := decimal.Zero
		for _, line := range lines {
			total = total.Add(line.LineTotal())
		}
		order.TotalAmount = total

		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for _, item := range current.Items {
			ok, err := cartRepo.DeleteItem(ctx, item.ID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeTransaction, messageCheckoutFailed)
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{OwnerID: ownerID},
			Data: payloads.OrderPlacedEvent{
				OrderID:     order.ID,
				OwnerID:     ownerID,
				TotalAmount: order.TotalAmount.StringFixed(2),
				Items:       orders.EventLines(order.Items),
			},
		}); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		err = pkgerrors.TransactionFailure(err, messageCheckoutFailed)
		if pkgerrors.IsCode(err, pkgerrors.CodeTransaction) {
			s.logg.Error(logCtx, "checkout.failed", err)
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"order_id":     placed.ID.String(),
		"total_amount": placed.TotalAmount.StringFixed(2),
		"line_count":   len(placed.Items),
	}), "checkout.completed")

	return &Result{Order: orders.NewOrderDTO(placed), Message: messageOrderPlaced}, nil
}

// revalidate locks each product in id order and fails when a cart line is
// larger than the product's current stock.
func (s *service) revalidate(ctx context.Context, tx *gorm.DB, items []models.CartItem) ([]models.OrderItem, error) {
	sorted := make([]models.CartItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})

	lines := make([]models.OrderItem, 0, len(sorted))
	for _, item := range sorted {
		product, err := s.ledger.Lock(ctx, tx, item.ProductID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, ledger.InsufficientStock(nil, item.Quantity)
			}
			return nil, err
		}

		if item.Quantity > product.Stock {
			return nil, ledger.InsufficientStock(product, item.Quantity)
		}

		lines = append(lines, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			Price:       product.Price,
		})
	}
	return lines, nil
}
