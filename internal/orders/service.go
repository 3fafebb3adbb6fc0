package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/ledger"
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
	messageOrderCancelled   = "Order cancelled successfully."
	messageOrderNotFound    = "Order not found."
	messageOrderShipped     = "Order has already been shipped and cannot be cancelled."
	messageAlreadyCancelled = "Order has already been cancelled."
	messageCancelFailed     = "Cancellation failed. Please try again."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type stockRestorer interface {
	Restore(ctx context.Context, tx *gorm.DB, movement ledger.Movement) (int, error)
}

// Service exposes order history and cancellation.
type Service interface {
	List(ctx context.Context, ownerID string) ([]OrderDTO, error)
	Cancel(ctx context.Context, ownerID string, orderID uuid.UUID) (*CancelResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	ledger  stockRestorer
	outbox  outboxPublisher
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
}

// NewService wires order operations. metrics may be nil.
func NewService(repo Repository, tx txRunner, stock stockRestorer, publisher outboxPublisher, m *metrics.CommerceMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		ledger:  stock,
		outbox:  publisher,
		metrics: m,
		logg:    logg,
	}, nil
}

func (s *service) List(ctx context.Context, ownerID string) ([]OrderDTO, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "order owner is required")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewOrderDTO(&rows[i]))
	}
	return out, nil
}

// Cancel returns every item's quantity to stock and marks the order cancelled.
// Only placed orders can be cancelled; a second cancel is rejected.
func (s *service) Cancel(ctx context.Context, ownerID string, orderID uuid.UUID) (result *CancelResult, err error) {
	defer func() { s.metrics.ObserveCancel(err) }()

	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "order owner is required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, messageOrderNotFound)
	}

	logCtx := s.logg.WithField(s.logg.WithOwner(ctx, ownerID), "order_id", orderID.String())
	var skipped []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOwned(ctx, ownerID, orderID, true)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, messageOrderNotFound)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := checkCancellable(order); err != nil {
			return err
		}

		restored := make([]models.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			_, err := s.ledger.Restore(ctx, tx, ledger.Movement{
				ProductID:   item.ProductID,
				Amount:      item.Quantity,
				Reason:      enums.StockReasonOrderCancel,
				ReferenceID: &order.ID,
			})
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					skipped = append(skipped, item.ProductID)
					continue
				}
				return err
			}
			restored = append(restored, item)
		}

		now := time.Now().UTC()
		if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled, &now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{OwnerID: ownerID},
			Data: payloads.OrderCancelledEvent{
				OrderID:           order.ID,
				OwnerID:           ownerID,
				RestoredItems:     EventLines(restored),
				SkippedProductIDs: skipped,
			},
		}); err != nil {
			return err
		}

		result = &CancelResult{Order: NewOrderDTO(order), Message: messageOrderCancelled}
		return nil
	})
	if err != nil {
		err = pkgerrors.TransactionFailure(err, messageCancelFailed)
		if pkgerrors.IsCode(err, pkgerrors.CodeTransaction) {
			s.logg.Error(logCtx, "order.cancel_failed", err)
		}
		return nil, err
	}

	for _, productID := range skipped {
		s.logg.Warn(s.logg.WithField(logCtx, "product_id", productID.String()), "order.cancel_skipped_missing_product")
	}
	s.logg.Info(logCtx, "order.cancelled")
	return result, nil
}

func checkCancellable(order *models.Order) error {
	if order.Status.Cancellable() {
		return nil
	}
	details := map[string]any{"status": order.Status}
	switch order.Status {
	case enums.OrderStatusShipped:
		return pkgerrors.New(pkgerrors.CodeStateConflict, messageOrderShipped).WithDetails(details)
	case enums.OrderStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeStateConflict, messageAlreadyCancelled).WithDetails(details)
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("Order in status %s cannot be cancelled.", order.Status)).WithDetails(details)
	}
}
