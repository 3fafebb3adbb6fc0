package payloads

import "github.com/google/uuid"

// OrderLine is one product line carried by order events.
type OrderLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
}

// OrderPlacedEvent is emitted when a cart is converted into an order.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OwnerID     string      `json:"owner_id"`
	TotalAmount string      `json:"total_amount"`
	Items       []OrderLine `json:"items"`
}

// OrderCancelledEvent is emitted once a placed order is cancelled and its stock
// restored. SkippedProductIDs lists lines whose product no longer exists, so no
// stock was returned for them.
type OrderCancelledEvent struct {
	OrderID           uuid.UUID   `json:"order_id"`
	OwnerID           string      `json:"owner_id"`
	RestoredItems     []OrderLine `json:"restored_items"`
	SkippedProductIDs []uuid.UUID `json:"skipped_product_ids,omitempty"`
}
