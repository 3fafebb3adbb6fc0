package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox/payloads"
)

// OrderItemDTO is an order line as snapshotted at checkout.
type OrderItemDTO struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Price       string    `json:"price"`
	LineTotal   string    `json:"line_total"`
}

// OrderDTO is the order payload returned to clients.
type OrderDTO struct {
	ID          uuid.UUID         `json:"id"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount string            `json:"total_amount"`
	Items       []OrderItemDTO    `json:"items"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewOrderDTO builds a DTO from the persisted order and its items.
func NewOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:          order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Items:       make([]OrderItemDTO, 0, len(order.Items)),
		CancelledAt: order.CancelledAt,
		CreatedAt:   order.CreatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
			LineTotal:   item.LineTotal().StringFixed(2),
		})
	}
	return dto
}

// EventLines converts order items into the outbox event representation.
func EventLines(items []models.OrderItem) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, payloads.OrderLine{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}
	return lines
}

// CancelResult reports a cancelled order.
type CancelResult struct {
	Order   OrderDTO `json:"order"`
	Message string   `json:"message"`
}
