package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/ledger"
	"github.com/angelmondragon/shopcart-backend/internal/orders"
	product "github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox"
	"github.com/angelmondragon/shopcart-backend/pkg/outbox/payloads"
)

const owner = "user-7"

type fixture struct {
	conn     *gorm.DB
	cart     cart.Service
	checkout Service
	orders   orders.Service
}

func newFixture(t *testing.T, publisher outboxPublisher) fixture {
	t.Helper()

	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	m := metrics.NewCommerceMetrics(prometheus.NewRegistry())
	tx := db.NewFromGorm(conn)

	stock, err := ledger.NewService(ledger.NewRepository(conn), m, logg)
	require.NoError(t, err)
	if publisher == nil {
		publisher = outbox.NewService(outbox.NewRepository(conn), logg)
	}

	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	cartSvc, err := cart.NewService(cartRepo, product.NewRepository(conn), stock, tx, m, logg)
	require.NoError(t, err)
	checkoutSvc, err := NewService(cartRepo, orderRepo, stock, publisher, tx, m, logg)
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orderRepo, tx, stock, publisher, m, logg)
	require.NoError(t, err)

	return fixture{conn: conn, cart: cartSvc, checkout: checkoutSvc, orders: orderSvc}
}

func (f fixture) add(t *testing.T, productID uuid.UUID, qty int) *cart.ItemResult {
	t.Helper()
	res, err := f.cart.Add(context.Background(), owner, cart.AddItemInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return res
}

func TestCheckoutScenario(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)

	item := f.add(t, p.ID, 3)
	assert.Equal(t, 7, dbtest.StockOf(t, f.conn, p.ID))

	_, err := f.cart.UpdateQuantity(context.Background(), owner, item.ItemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, dbtest.StockOf(t, f.conn, p.ID))

	res, err := f.checkout.Checkout(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "Order placed successfully!", res.Message)
	assert.Equal(t, "25.00", res.Order.TotalAmount)
	assert.Equal(t, enums.OrderStatusPlaced, res.Order.Status)
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "Widget", res.Order.Items[0].ProductName)
	assert.Equal(t, "5.00", res.Order.Items[0].Price)
	assert.Equal(t, 5, res.Order.Items[0].Quantity)
	assert.Equal(t, 5, dbtest.StockOf(t, f.conn, p.ID))

	view, err := f.cart.Index(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, "0.00", view.Total)

	cancelled, err := f.orders.Cancel(context.Background(), owner, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Order.Status)
	assert.NotNil(t, cancelled.Order.CancelledAt)
	assert.Equal(t, "Order cancelled successfully.", cancelled.Message)
	assert.Equal(t, 10, dbtest.StockOf(t, f.conn, p.ID))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventOrderPlaced, events[0].EventType)
	assert.Equal(t, enums.EventOrderCancelled, events[1].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var placed payloads.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &placed))
	assert.Equal(t, res.Order.ID, placed.OrderID)
	assert.Equal(t, "25.00", placed.TotalAmount)
}

func TestCheckoutSnapshotsCurrentPrice(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	f.add(t, p.ID, 2)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", "7.25").Error)

	res, err := f.checkout.Checkout(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "14.50", res.Order.TotalAmount)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", "9.00").Error)
	list, err := f.orders.List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "7.25", list[0].Items[0].Price)
}

func TestCheckoutMultipleLines(t *testing.T) {
	f := newFixture(t, nil)
	a := dbtest.SeedProduct(t, f.conn, "Apple", "1.10", 10)
	b := dbtest.SeedProduct(t, f.conn, "Banana", "0.35", 10)
	f.add(t, a.ID, 3)
	f.add(t, b.ID, 4)

	res, err := f.checkout.Checkout(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "4.70", res.Order.TotalAmount)
	assert.Len(t, res.Order.Items, 2)
	assert.Equal(t, 7, dbtest.StockOf(t, f.conn, a.ID))
	assert.Equal(t, 6, dbtest.StockOf(t, f.conn, b.ID))
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.checkout.Checkout(context.Background(), owner)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeEmptyCart, typed.Code())
	assert.Equal(t, "Your cart is empty.", typed.Message())

	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	item := f.add(t, p.ID, 1)
	_, err = f.cart.RemoveItem(context.Background(), owner, item.ItemID)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(context.Background(), owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckoutMissingProductIsUnknown(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Ghost", "5.00", 10)
	f.add(t, p.ID, 2)

	require.NoError(t, f.conn.Delete(&models.Product{}, "id = ?", p.ID).Error)

	_, err := f.checkout.Checkout(context.Background(), owner)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, "Insufficient stock for product: Unknown", typed.Message())

	var items int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Count(&items).Error)
	assert.EqualValues(t, 1, items)
}

func TestCheckoutFailsWhenLineExceedsCurrentStock(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	item := f.add(t, p.ID, 6)
	require.Equal(t, 4, dbtest.StockOf(t, f.conn, p.ID))

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", p.ID).Update("stock", 0).Error)

	_, err := f.checkout.Checkout(context.Background(), owner)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	assert.Equal(t, "Insufficient stock for product: Widget", typed.Message())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, details["available"])
	assert.Equal(t, 6, details["requested"])

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
	assert.Equal(t, 0, dbtest.StockOf(t, f.conn, p.ID))

	view, err := f.cart.Index(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, item.ItemID, view.Items[0].ItemID)
	assert.Equal(t, 6, view.Items[0].Quantity)
}

func TestCheckoutLineAboveRemainingStockFails(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	f.add(t, p.ID, 6)

	_, err := f.checkout.Checkout(context.Background(), owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 4, dbtest.StockOf(t, f.conn, p.ID))
}

// staleCarts serves a cart snapshot taken before another checkout emptied it.
type staleCarts struct {
	cart.Repository
	snapshot models.Cart
}

func (r staleCarts) WithTx(tx *gorm.DB) cart.Repository {
	return staleCarts{Repository: r.Repository.WithTx(tx), snapshot: r.snapshot}
}

func (r staleCarts) FindByOwner(context.Context, string, bool) (*models.Cart, error) {
	snapshot := r.snapshot
	return &snapshot, nil
}

func TestCheckoutOfAlreadyClearedCartPlacesNothing(t *testing.T) {
	f := newFixture(t, nil)
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	f.add(t, p.ID, 2)

	snapshot, err := cart.NewRepository(f.conn).FindByOwner(context.Background(), owner, false)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(context.Background(), owner)
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	stock, err := ledger.NewService(ledger.NewRepository(f.conn), nil, logg)
	require.NoError(t, err)
	stale, err := NewService(staleCarts{Repository: cart.NewRepository(f.conn), snapshot: *snapshot}, orders.NewRepository(f.conn), stock,
		outbox.NewService(outbox.NewRepository(f.conn), logg), db.NewFromGorm(f.conn), nil, logg)
	require.NoError(t, err)

	_, err = stale.Checkout(context.Background(), owner)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransaction))

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
	assert.Equal(t, 8, dbtest.StockOf(t, f.conn, p.ID))
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox table unavailable")
}

func TestCheckoutRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t, failingPublisher{})
	p := dbtest.SeedProduct(t, f.conn, "Widget", "5.00", 10)
	f.add(t, p.ID, 4)

	_, err := f.checkout.Checkout(context.Background(), owner)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeTransaction, typed.Code())
	assert.Equal(t, "Checkout failed. Please try again.", typed.Message())

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	view, err := f.cart.Index(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 4, view.Items[0].Quantity)
	assert.Equal(t, 6, dbtest.StockOf(t, f.conn, p.ID))
}

func TestCheckoutThenCancelNetsZero(t *testing.T) {
	f := newFixture(t, nil)
	a := dbtest.SeedProduct(t, f.conn, "A", "2.00", 18)
	b := dbtest.SeedProduct(t, f.conn, "B", "3.00", 4)
	f.add(t, a.ID, 9)
	f.add(t, b.ID, 1)

	res, err := f.checkout.Checkout(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 9, dbtest.StockOf(t, f.conn, a.ID))

	_, err = f.orders.Cancel(context.Background(), owner, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, dbtest.StockOf(t, f.conn, a.ID))
	assert.Equal(t, 4, dbtest.StockOf(t, f.conn, b.ID))

	_, err = f.orders.Cancel(context.Background(), owner, res.Order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 18, dbtest.StockOf(t, f.conn, a.ID))
}

func TestCheckoutRequiresOwner(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.checkout.Checkout(context.Background(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
