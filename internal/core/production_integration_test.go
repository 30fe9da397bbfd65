package core_test

import (
	"errors"
	"testing"

	"cafepos/internal/core"
)

func TestProduction_CostRollUp(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)
	recipes := core.NewRecipeService(pool, stock)

	flour := seedProduct(t, ctx, pool, "Flour", core.ProductRaw, true)
	butter := seedProduct(t, ctx, pool, "Butter", core.ProductRaw, true)
	croissant := seedProduct(t, ctx, pool, "Croissant", core.ProductProcessed, true)

	if _, err := stock.AddLot(ctx, flour, nil, mustDec("1000"), mustDec("5")); err != nil {
		t.Fatalf("AddLot flour failed: %v", err)
	}
	if _, err := stock.AddLot(ctx, butter, nil, mustDec("1000"), mustDec("8")); err != nil {
		t.Fatalf("AddLot butter failed: %v", err)
	}

	// Authored 60/40 normalizes to weights {0.6, 0.4}.
	recipe, err := recipes.CreateRecipe(ctx, croissant, true, "laminate and bake", 45, []core.ComponentInput{
		{ProductID: flour, Quantity: mustDec("60")},
		{ProductID: butter, Quantity: mustDec("40")},
	})
	if err != nil {
		t.Fatalf("CreateRecipe failed: %v", err)
	}

	production, err := recipes.Produce(ctx, managerActor, recipe.ID, mustDec("10"), []int{1})
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	// 6·5 + 4·8 = 62 over 10 units.
	if !production.UnitCost.Equal(mustDec("6.20")) {
		t.Errorf("unit cost = %s, want 6.20", production.UnitCost)
	}
	if production.InputQuantity != nil {
		t.Errorf("countable recipe must not retain an input aggregate, got %s", *production.InputQuantity)
	}

	if !currentStock(t, ctx, stock, flour).Equal(mustDec("994")) {
		t.Errorf("flour should be drained to 994")
	}
	if !currentStock(t, ctx, stock, butter).Equal(mustDec("996")) {
		t.Errorf("butter should be drained to 996")
	}

	lots, err := stock.Lots(ctx, croissant)
	if err != nil {
		t.Fatalf("Lots failed: %v", err)
	}
	if len(lots) != 1 {
		t.Fatalf("expected exactly one produced lot, got %d", len(lots))
	}
	if !lots[0].QuantityTotal.Equal(mustDec("10")) || !lots[0].UnitCost.Equal(mustDec("6.20")) {
		t.Errorf("produced lot = (%s @ %s), want (10 @ 6.20)", lots[0].QuantityTotal, lots[0].UnitCost)
	}
	if lots[0].ID != production.LotID {
		t.Errorf("production should reference the produced lot")
	}
}

func TestProduction_InsufficientStockHaltsRun(t *testing.T) {
	pool, ctx := setupTestDB(t)
	stock := core.NewStockService(pool)
	recipes := core.NewRecipeService(pool, stock)

	beans := seedProduct(t, ctx, pool, "Beans", core.ProductRaw, true)
	espresso := seedProduct(t, ctx, pool, "Espresso Blend", core.ProductProcessed, true)

	if _, err := stock.AddLot(ctx, beans, nil, mustDec("5"), mustDec("2")); err != nil {
		t.Fatalf("AddLot failed: %v", err)
	}

	recipe, err := recipes.CreateRecipe(ctx, espresso, true, "", 0, []core.ComponentInput{
		{ProductID: beans, Quantity: mustDec("1")},
	})
	if err != nil {
		t.Fatalf("CreateRecipe failed: %v", err)
	}

	// Single component weight 1, so 6 output units need 6 beans; only 5 exist.
	_, err = recipes.Produce(ctx, managerActor, recipe.ID, mustDec("6"), nil)
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if !currentStock(t, ctx, stock, beans).Equal(mustDec("5")) {
		t.Errorf("failed run must leave component lots unchanged")
	}
	lots, err := stock.Lots(ctx, espresso)
	if err != nil {
		t.Fatalf("Lots failed: %v", err)
	}
	if len(lots) != 0 {
		t.Errorf("failed run must not create an output lot, got %d", len(lots))
	}
}

func TestRecipe_RejectsDuplicateComponent(t *testing.T) {
	pool, ctx := setupTestDB(t)
	recipes := core.NewRecipeService(pool, core.NewStockService(pool))

	beans := seedProduct(t, ctx, pool, "Beans", core.ProductRaw, true)
	blend := seedProduct(t, ctx, pool, "Blend", core.ProductProcessed, true)

	_, err := recipes.CreateRecipe(ctx, blend, true, "", 0, []core.ComponentInput{
		{ProductID: beans, Quantity: mustDec("1")},
		{ProductID: beans, Quantity: mustDec("2")},
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate component, got %v", err)
	}
}

func TestRecipe_RejectsRawOutput(t *testing.T) {
	pool, ctx := setupTestDB(t)
	recipes := core.NewRecipeService(pool, core.NewStockService(pool))

	beans := seedProduct(t, ctx, pool, "Beans", core.ProductRaw, true)

	_, err := recipes.CreateRecipe(ctx, beans, true, "", 0, []core.ComponentInput{
		{ProductID: beans, Quantity: mustDec("1")},
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for RAW recipe output, got %v", err)
	}
}
