package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)

const (
	messageItemAdded   = "Product added to cart successfully!"
	messageItemUpdated = "Cart updated successfully."
	messageItemRemoved = "Item removed from cart."
	messageCartChanged = "Your cart changed while this request was running. Please try again."
)

// AddItemInput is the validated add-to-cart payload.
type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// LineView is one cart line priced at the current product price.
type LineView struct {
	ItemID    uuid.UUID `json:"item_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	ImageURL  *string   `json:"image_url,omitempty"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	LineTotal string    `json:"line_total"`
}

// View is the priced cart of an owner.
type View struct {
	CartID    *uuid.UUID `json:"cart_id,omitempty"`
	Items     []LineView `json:"items"`
	ItemCount int        `json:"item_count"`
	Total     string     `json:"total"`
}

// ItemResult reports a cart mutation and the product stock left after it.
type ItemResult struct {
	ItemID         uuid.UUID `json:"item_id"`
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	RemainingStock int       `json:"remaining_stock"`
	Message        string    `json:"message"`
}

func newView(cart *models.Cart) *View {
	view := &View{Items: []LineView{}, Total: decimal.Zero.StringFixed(2)}
	if cart == nil {
		return view
	}
	id := cart.ID
	view.CartID = &id

	total := decimal.Zero
	for _, item := range cart.Items {
		if item.Product == nil {
			continue
		}
		lineTotal := item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(lineTotal)
		view.ItemCount += item.Quantity
		view.Items = append(view.Items, LineView{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			ImageURL:  item.Product.ImageURL,
			Price:     item.Product.Price.StringFixed(2),
			Quantity:  item.Quantity,
			LineTotal: lineTotal.StringFixed(2),
		})
	}
	view.Total = total.StringFixed(2)
	return view
}
