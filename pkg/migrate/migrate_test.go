package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_products": {
			"CREATE TABLE IF NOT EXISTS products",
			"CHECK (stock >= 0)",
			"price numeric(12,2) NOT NULL",
			"DROP TABLE IF EXISTS products",
		},
		"create_carts": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_owner_id ON carts (owner_id)",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_cart_product ON cart_items (cart_id, product_id)",
			"CHECK (quantity >= 1)",
			"REFERENCES products(id) ON DELETE CASCADE",
		},
		"create_orders": {
			"CREATE TYPE order_status AS ENUM ('placed', 'cancelled', 'shipped')",
			"status order_status NOT NULL DEFAULT 'placed'",
			"CREATE TABLE IF NOT EXISTS order_items",
			"DROP TYPE IF EXISTS order_status",
		},
		"create_stock_movements": {
			"CREATE TYPE stock_movement_reason AS ENUM ('cart_add', 'cart_update', 'cart_remove', 'cart_expired', 'order_cancel')",
			"stock_after integer NOT NULL",
		},
		"create_outbox_events": {
			"terminal_at timestamptz",
			"WHERE published_at IS NULL AND terminal_at IS NULL",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			assert.Contains(t, content, sub, "%s migration", suffix)
		}
	}
}

func TestOrderItemsKeepDeletedProducts(t *testing.T) {
	content := readMigration(t, "create_orders")
	start := strings.Index(content, "CREATE TABLE IF NOT EXISTS order_items")
	require.GreaterOrEqual(t, start, 0)
	assert.NotContains(t, content[start:], "REFERENCES products")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Product SKU!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_product_sku.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
	_, err = CreateSQLMigration("", "name")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		ok   bool
	}{
		{"balanced", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\n", true},
		{"missing down", "-- +goose Up\nSELECT 1;\n", false},
		{"down first", "-- +goose Down\nSELECT 1;\n-- +goose Up\n", false},
		{"unbalanced", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBody(tt.sql)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMaybeRunDevSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	client := db.NewFromGorm(conn)

	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		DB:           config.DBConfig{Driver: config.DriverSQLite},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: &strings.Builder{}})

	require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, client))
	for _, table := range []string{"products", "carts", "cart_items", "orders", "order_items", "stock_movements", "outbox_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: &strings.Builder{}})
	assert.NoError(t, MaybeRunDev(context.Background(), cfg, logg, nil))
}
