package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cafepos/internal/core"
)

// Shared fixtures for the integration tests. All of them require a dedicated
// test database; set TEST_DATABASE_URL (with migrations applied) to run them.

var (
	cashierActor = core.Actor{ID: 1, Username: "dana", Roles: []string{"cashier"}, IsStaff: true}
	managerActor = core.Actor{ID: 2, Username: "sam", Roles: []string{"manager"}, IsStaff: true}
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE sale_refunds, sale_payments, sale_invoices, invoice_sequences,
			sale_items, sales, item_production_cooperators, item_productions,
			recipe_components, recipes, purchase_returns, stock_entries,
			purchase_items, purchase_invoices, supplier_products, suppliers,
			menu_items, menu_categories, tables, products, units,
			product_adjustment_reports, daily_financial_reports,
			payment_accounts, users
		RESTART IDENTITY CASCADE;

		INSERT INTO users (id, username, is_staff) VALUES
			(1, 'dana', true),
			(2, 'sam', true);

		INSERT INTO payment_accounts (id, name) VALUES (1, 'POS terminal');

		INSERT INTO tables (id, name, seats) VALUES (1, 'T1', 4);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool, ctx
}

// seedProduct inserts a product directly and returns its id.
func seedProduct(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string, typ core.ProductType, traceable bool) int {
	t.Helper()
	var id int
	err := pool.QueryRow(ctx, `
		INSERT INTO products (name, type, is_stock_traceable)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, typ, traceable).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed product %s: %v", name, err)
	}
	return id
}

// seedMenuItem wires a SELLABLE product onto the menu and returns the menu item id.
func seedMenuItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, productID int, name string, price string) int {
	t.Helper()
	var categoryID int
	err := pool.QueryRow(ctx, `
		INSERT INTO menu_categories (name, position) VALUES ($1, 0)
		ON CONFLICT (name) DO UPDATE SET position = menu_categories.position
		RETURNING id
	`, "Drinks").Scan(&categoryID)
	if err != nil {
		t.Fatalf("Failed to seed menu category: %v", err)
	}

	var id int
	err = pool.QueryRow(ctx, `
		INSERT INTO menu_items (category_id, product_id, name, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, categoryID, productID, name, price).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to seed menu item %s: %v", name, err)
	}
	return id
}

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func currentStock(t *testing.T, ctx context.Context, stock core.StockService, productID int) decimal.Decimal {
	t.Helper()
	qty, err := stock.CurrentStock(ctx, productID)
	if err != nil {
		t.Fatalf("CurrentStock failed: %v", err)
	}
	return qty
}
