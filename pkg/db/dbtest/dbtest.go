// Package dbtest opens throwaway sqlite databases migrated with the service models.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
)

// Open returns an isolated in-memory database with every model migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:shopcart_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// one connection keeps the shared-cache database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedProduct inserts a product with the given price and stock.
func SeedProduct(t *testing.T, conn *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()

	product := models.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return product
}

// StockOf reloads the current stock of a product.
func StockOf(t *testing.T, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()

	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("reload product %s: %v", productID, err)
	}
	return product.Stock
}
