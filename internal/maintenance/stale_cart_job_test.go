package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

const holdTTL = 72 * time.Hour

func newStaleCartJob(t *testing.T, conn *gorm.DB) Job {
	t.Helper()
	stock, err := ledger.NewService(ledger.NewRepository(conn), nil, testLogger())
	require.NoError(t, err)
	job, err := NewStaleCartJob(StaleCartJobParams{
		Logger:  testLogger(),
		DB:      db.NewFromGorm(conn),
		Carts:   cart.NewRepository(conn),
		Ledger:  stock,
		HoldTTL: holdTTL,
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

// holdItem places qty of product in owner's cart as if it had been deducted
// at touchedAt.
func holdItem(t *testing.T, conn *gorm.DB, owner string, product models.Product, qty int, touchedAt time.Time) models.CartItem {
	t.Helper()
	ctx := context.Background()
	repo := cart.NewRepository(conn)

	c, err := repo.FindOrCreate(ctx, owner)
	require.NoError(t, err)
	item := models.CartItem{CartID: c.ID, ProductID: product.ID, Quantity: qty}
	require.NoError(t, repo.CreateItem(ctx, &item))
	require.NoError(t, conn.Model(&models.CartItem{}).Where("id = ?", item.ID).UpdateColumn("updated_at", touchedAt).Error)
	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", product.ID).UpdateColumn("stock", gorm.Expr("stock - ?", qty)).Error)
	return item
}

func TestStaleCartJobRestoresHeldStock(t *testing.T) {
	conn := dbtest.Open(t)
	widget := dbtest.SeedProduct(t, conn, "Widget", "5.00", 10)
	gadget := dbtest.SeedProduct(t, conn, "Gadget", "2.00", 4)

	old := time.Now().UTC().Add(-holdTTL - time.Hour)
	holdItem(t, conn, "guest:abandoned", widget, 3, old)
	holdItem(t, conn, "guest:abandoned", gadget, 1, old)
	fresh := holdItem(t, conn, "user-active", widget, 2, time.Now().UTC())

	require.Equal(t, 5, dbtest.StockOf(t, conn, widget.ID))
	require.Equal(t, 3, dbtest.StockOf(t, conn, gadget.ID))

	require.NoError(t, newStaleCartJob(t, conn).Run(context.Background()))

	assert.Equal(t, 8, dbtest.StockOf(t, conn, widget.ID))
	assert.Equal(t, 4, dbtest.StockOf(t, conn, gadget.ID))

	var remaining []models.CartItem
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)

	var movements []models.StockMovement
	require.NoError(t, conn.Where("reason = ?", enums.StockReasonCartExpired).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Positive(t, m.Delta)
		require.NotNil(t, m.ReferenceID)
	}
}

func TestStaleCartJobKeepsCartWithRecentActivity(t *testing.T) {
	conn := dbtest.Open(t)
	widget := dbtest.SeedProduct(t, conn, "Widget", "5.00", 10)
	gadget := dbtest.SeedProduct(t, conn, "Gadget", "2.00", 4)

	holdItem(t, conn, "user-1", widget, 3, time.Now().UTC().Add(-holdTTL-time.Hour))
	holdItem(t, conn, "user-1", gadget, 1, time.Now().UTC())

	require.NoError(t, newStaleCartJob(t, conn).Run(context.Background()))

	assert.Equal(t, 7, dbtest.StockOf(t, conn, widget.ID))
	var count int64
	require.NoError(t, conn.Model(&models.CartItem{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestStaleCartJobDisabled(t *testing.T) {
	job, err := NewStaleCartJob(StaleCartJobParams{HoldTTL: 0})
	require.NoError(t, err)
	assert.Nil(t, job)
}
