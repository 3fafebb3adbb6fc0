package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)

// ProductDTO is the catalog entry returned to clients.
type ProductDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	InStock     bool      `json:"in_stock"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		ImageURL:    product.ImageURL,
		Price:       product.Price.StringFixed(2),
		Stock:       product.Stock,
		InStock:     product.Stock > 0,
	}
}
