package enums

import "fmt"

// StockMovementReason tags each stock delta recorded by the ledger.
type StockMovementReason string

const (
	StockReasonCartAdd     StockMovementReason = "cart_add"
	StockReasonCartUpdate  StockMovementReason = "cart_update"
	StockReasonCartRemove  StockMovementReason = "cart_remove"
	StockReasonCartExpired StockMovementReason = "cart_expired"
	StockReasonOrderCancel StockMovementReason = "order_cancel"
)

var validStockMovementReasons = []StockMovementReason{
	StockReasonCartAdd,
	StockReasonCartUpdate,
	StockReasonCartRemove,
	StockReasonCartExpired,
	StockReasonOrderCancel,
}

func (r StockMovementReason) String() string {
	return string(r)
}

func (r StockMovementReason) IsValid() bool {
	for _, candidate := range validStockMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseStockMovementReason(value string) (StockMovementReason, error) {
	for _, candidate := range validStockMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement reason %q", value)
}
