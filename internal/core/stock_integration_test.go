package core_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cafepos/internal/core"
)

func TestStock_FIFOTwoLotConsumption(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)

	beans := seedProduct(t, ctx, pool, "Coffee Beans", core.ProductRaw, true)
	if _, err := stock.AddLot(ctx, beans, nil, mustDec("100"), mustDec("10")); err != nil {
		t.Fatalf("first AddLot failed: %v", err)
	}
	if _, err := stock.AddLot(ctx, beans, nil, mustDec("50"), mustDec("12")); err != nil {
		t.Fatalf("second AddLot failed: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	result, err := stock.ConsumeTx(ctx, tx, beans, mustDec("120"))
	if err != nil {
		t.Fatalf("ConsumeTx failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// 100·10 from the first lot, then 20·12 from the second.
	if !result.ConsumedCost.Equal(mustDec("1240")) {
		t.Errorf("consumed cost = %s, want 1240", result.ConsumedCost)
	}
	if len(result.Lots) != 2 {
		t.Fatalf("expected 2 lot consumptions, got %d", len(result.Lots))
	}
	if !result.Lots[0].Quantity.Equal(mustDec("100")) || !result.Lots[1].Quantity.Equal(mustDec("20")) {
		t.Errorf("lot split = %s + %s, want 100 + 20", result.Lots[0].Quantity, result.Lots[1].Quantity)
	}

	lots, err := stock.Lots(ctx, beans)
	if err != nil {
		t.Fatalf("Lots failed: %v", err)
	}
	if lots[0].IsRemaining || !lots[0].QuantityRemaining.IsZero() {
		t.Errorf("first lot should be depleted, got remaining=%s is_remaining=%v",
			lots[0].QuantityRemaining, lots[0].IsRemaining)
	}
	if !lots[1].QuantityRemaining.Equal(mustDec("30")) {
		t.Errorf("second lot remaining = %s, want 30", lots[1].QuantityRemaining)
	}
	if !currentStock(t, ctx, stock, beans).Equal(mustDec("30")) {
		t.Errorf("current stock should be 30")
	}
}

func TestStock_InsufficientRollsBack(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)

	milk := seedProduct(t, ctx, pool, "Milk", core.ProductRaw, true)
	if _, err := stock.AddLot(ctx, milk, nil, mustDec("5"), mustDec("3")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	_, err = stock.ConsumeTx(ctx, tx, milk, mustDec("6"))
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	_ = tx.Rollback(ctx)

	if !currentStock(t, ctx, stock, milk).Equal(mustDec("5")) {
		t.Errorf("rolled-back consumption must leave stock untouched")
	}
}

func TestAdjustment_DownThenUp(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)
	adjustments := core.NewAdjustmentService(pool, stock)

	sugar := seedProduct(t, ctx, pool, "Sugar", core.ProductRaw, true)
	if _, err := stock.AddLot(ctx, sugar, nil, mustDec("10"), mustDec("5")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}
	if _, err := stock.AddLot(ctx, sugar, nil, mustDec("10"), mustDec("7")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}
	if _, err := pool.Exec(ctx, "UPDATE products SET last_purchased_price = 7 WHERE id = $1", sugar); err != nil {
		t.Fatalf("failed to set last price: %v", err)
	}

	// Count comes in at 12: drain 8 FIFO (8·5 = 40).
	down, err := adjustments.AdjustStock(ctx, managerActor, sugar, mustDec("12"))
	if err != nil {
		t.Fatalf("downward adjustment failed: %v", err)
	}
	if down == nil || down.Cost == nil {
		t.Fatal("downward adjustment must carry the drained cost")
	}
	if !down.Cost.Equal(mustDec("40")) {
		t.Errorf("drained cost = %s, want 40", *down.Cost)
	}
	if !down.PreviousQuantity.Equal(mustDec("20")) || !down.CurrentQuantity.Equal(mustDec("12")) {
		t.Errorf("report quantities = %s -> %s, want 20 -> 12", down.PreviousQuantity, down.CurrentQuantity)
	}

	// Count comes in at 15: synthetic lot of 3 priced at the last purchase price.
	up, err := adjustments.AdjustStock(ctx, managerActor, sugar, mustDec("15"))
	if err != nil {
		t.Fatalf("upward adjustment failed: %v", err)
	}
	if up.Cost != nil {
		t.Errorf("upward adjustment must not carry a cost, got %s", *up.Cost)
	}
	if !currentStock(t, ctx, stock, sugar).Equal(mustDec("15")) {
		t.Errorf("stock after upward adjustment should be 15")
	}

	lots, err := stock.Lots(ctx, sugar)
	if err != nil {
		t.Fatalf("Lots failed: %v", err)
	}
	synthetic := lots[len(lots)-1]
	if !synthetic.QuantityTotal.Equal(mustDec("3")) || !synthetic.UnitCost.Equal(mustDec("7")) {
		t.Errorf("synthetic lot = (%s @ %s), want (3 @ 7)", synthetic.QuantityTotal, synthetic.UnitCost)
	}

	// Matching count is a no-op with no report.
	noop, err := adjustments.AdjustStock(ctx, managerActor, sugar, mustDec("15"))
	if err != nil {
		t.Fatalf("no-op adjustment failed: %v", err)
	}
	if noop != nil {
		t.Errorf("matching count must not create a report")
	}
}

func TestAdjustment_RequiresStaff(t *testing.T) {
	pool, ctx := setupTestDB(t)
	adjustments := core.NewAdjustmentService(pool, core.NewStockService(pool))

	outsider := core.Actor{ID: 1, Username: "dana"}
	_, err := adjustments.AdjustStock(ctx, outsider, 1, decimal.Zero)
	if !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-staff, got %v", err)
	}

	// Superusers pass the gate even without the staff flag.
	flour := seedProduct(t, ctx, pool, "Flour", core.ProductRaw, true)
	superuser := core.Actor{ID: 2, Username: "sam", IsSuperuser: true}
	report, err := adjustments.AdjustStock(ctx, superuser, flour, decimal.Zero)
	if err != nil {
		t.Fatalf("superuser adjustment should pass the staff gate, got %v", err)
	}
	if report != nil {
		t.Errorf("zero count against an empty ledger must be a no-op")
	}
}

func TestStock_LotInvariantEnforced(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)

	milk := seedProduct(t, ctx, pool, "Milk", core.ProductRaw, true)
	lot, err := stock.AddLot(ctx, milk, nil, mustDec("5"), mustDec("3"))
	if err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	// remaining > total is rejected by the schema, not just by the service.
	_, err = pool.Exec(ctx,
		"UPDATE stock_entries SET quantity_remaining = quantity_total + 1 WHERE id = $1", lot.ID)
	if err == nil {
		t.Fatal("a lot must never hold more than its total quantity")
	}
}

func TestProduct_NameUniquePerType(t *testing.T) {
	pool, ctx := setupTestDB(t)

	seedProduct(t, ctx, pool, "Granola", core.ProductRaw, true)
	// The same name under another type is a different product.
	seedProduct(t, ctx, pool, "Granola", core.ProductSellable, false)

	_, err := pool.Exec(ctx,
		"INSERT INTO products (name, type, is_stock_traceable) VALUES ('Granola', 'RAW', true)")
	if err == nil {
		t.Fatal("duplicate (name, type) must be rejected")
	}
}
