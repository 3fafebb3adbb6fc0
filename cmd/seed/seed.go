package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)

type demoProduct struct {
	name        string
	description string
	price       string
	stock       int
}

var demoCatalog = []demoProduct{
	{name: "Canvas Tote Bag", description: "Heavy cotton tote with inner pocket.", price: "18.00", stock: 40},
	{name: "Ceramic Pour-Over Set", description: "Dripper, carafe and 40 filters.", price: "42.50", stock: 12},
	{name: "Enamel Camp Mug", description: "12 oz speckled enamel mug.", price: "14.00", stock: 60},
	{name: "Linen Apron", description: "Adjustable straps, two front pockets.", price: "36.00", stock: 8},
	{name: "Merino Beanie", description: "Ribbed knit, one size.", price: "29.99", stock: 25},
	{name: "Stoneware Bowl", description: "Hand-glazed, dishwasher safe.", price: "22.00", stock: 3},
	{name: "Walnut Cutting Board", description: "End-grain walnut, 12 x 18 in.", price: "89.00", stock: 5},
	{name: "Waxed Canvas Cap", description: "Limited run.", price: "34.00", stock: 0},
}

// seedProducts inserts the demo catalog unless products already exist.
// It returns the number of rows created.
func seedProducts(ctx context.Context, conn *gorm.DB, force bool) (int, error) {
	var existing int64
	if err := conn.WithContext(ctx).Model(&models.Product{}).Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if existing > 0 && !force {
		return 0, nil
	}

	rows := make([]models.Product, 0, len(demoCatalog))
	for _, item := range demoCatalog {
		price, err := decimal.NewFromString(item.price)
		if err != nil {
			return 0, fmt.Errorf("parse price for %s: %w", item.name, err)
		}
		description := item.description
		rows = append(rows, models.Product{
			Name:        item.name,
			Description: &description,
			Price:       price,
			Stock:       item.stock,
		})
	}
	if err := conn.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("insert products: %w", err)
	}
	return len(rows), nil
}
