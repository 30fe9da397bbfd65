package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// weightPlaces is the stored precision of normalized component weights.
const weightPlaces = 6

// NormalizeWeights divides each authored quantity by the total so the
// returned weights sum to exactly 1. The rounding residual lands on the
// largest component. Applying it to already-normalized weights is a no-op.
func NormalizeWeights(quantities []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(quantities) == 0 {
		return nil, fmt.Errorf("%w: recipe has no components", ErrInvalidInput)
	}

	total := decimal.Zero
	largest := 0
	for i, q := range quantities {
		if !q.IsPositive() {
			return nil, fmt.Errorf("%w: component quantity must be positive, got %s", ErrInvalidInput, q)
		}
		total = total.Add(q)
		if q.GreaterThan(quantities[largest]) {
			largest = i
		}
	}
	if total.IsZero() {
		return nil, fmt.Errorf("%w: component quantities sum to zero", ErrInvalidInput)
	}

	weights := make([]decimal.Decimal, len(quantities))
	sum := decimal.Zero
	for i, q := range quantities {
		weights[i] = q.DivRound(total, weightPlaces)
		sum = sum.Add(weights[i])
	}
	// Pin the exact-1.0 invariant by absorbing the residual into the largest
	// weight, where it is relatively smallest.
	weights[largest] = weights[largest].Add(decimal.New(1, 0).Sub(sum))
	return weights, nil
}

// RecipeService manages recipes and runs productions: consuming component
// stock FIFO, rolling the consumed cost into the new lot's unit cost.
type RecipeService interface {
	CreateRecipe(ctx context.Context, productID int, isCountable bool, instructions string,
		preparedMinutes int, components []ComponentInput) (*Recipe, error)
	GetRecipe(ctx context.Context, recipeID int) (*Recipe, error)

	// Produce consumes component stock for outputQuantity units of the
	// recipe's product and appends a lot for the produced product priced at
	// Σ consumed cost / output quantity (2 dp, half-even). Any shortfall
	// rolls the whole run back.
	Produce(ctx context.Context, performer Actor, recipeID int, outputQuantity decimal.Decimal, cooperatorIDs []int) (*ItemProduction, error)
}

type recipeService struct {
	pool  *pgxpool.Pool
	stock StockService
}

func NewRecipeService(pool *pgxpool.Pool, stock StockService) RecipeService {
	return &recipeService{pool: pool, stock: stock}
}

func (s *recipeService) CreateRecipe(ctx context.Context, productID int, isCountable bool, instructions string,
	preparedMinutes int, components []ComponentInput) (*Recipe, error) {

	if len(components) == 0 {
		return nil, fmt.Errorf("%w: recipe needs at least one component", ErrInvalidInput)
	}

	product, err := fetchProductQ(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}
	if !product.Type.RecipeOutput() {
		return nil, fmt.Errorf("%w: %q is %s; only PROCESSED, SELLABLE and CONSUMABLE products can have a recipe",
			ErrInvalidInput, product.Name, product.Type)
	}

	quantities := make([]decimal.Decimal, len(components))
	for i, c := range components {
		quantities[i] = c.Quantity
	}
	weights, err := NormalizeWeights(quantities)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var recipeID int
	err = tx.QueryRow(ctx, `
		INSERT INTO recipes (product_id, is_countable, instructions, prepared_minutes)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, productID, isCountable, instructions, preparedMinutes).Scan(&recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert recipe: %w", classifyDBError(err))
	}

	for i, c := range components {
		_, err = tx.Exec(ctx, `
			INSERT INTO recipe_components (recipe_id, component_product_id, quantity)
			VALUES ($1, $2, $3)
		`, recipeID, c.ProductID, weights[i])
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: component product %d appears twice in the recipe", ErrInvalidInput, c.ProductID)
			}
			return nil, fmt.Errorf("failed to insert recipe component: %w", classifyDBError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit recipe: %w", classifyDBError(err))
	}
	return s.GetRecipe(ctx, recipeID)
}

func (s *recipeService) GetRecipe(ctx context.Context, recipeID int) (*Recipe, error) {
	return fetchRecipeQ(ctx, s.pool, recipeID)
}

func fetchRecipeQ(ctx context.Context, q interface {
	pgxQuerier
	pgxRowQuerier
}, recipeID int) (*Recipe, error) {
	var r Recipe
	err := q.QueryRow(ctx, `
		SELECT id, product_id, is_countable, instructions, prepared_minutes, created_at
		FROM recipes WHERE id = $1
	`, recipeID).Scan(&r.ID, &r.ProductID, &r.IsCountable, &r.Instructions, &r.PreparedMinutes, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: recipe %d not found", ErrInvalidInput, recipeID)
		}
		return nil, fmt.Errorf("failed to fetch recipe %d: %w", recipeID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, recipe_id, component_product_id, quantity
		FROM recipe_components
		WHERE recipe_id = $1
		ORDER BY id
	`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c RecipeComponent
		if err := rows.Scan(&c.ID, &c.RecipeID, &c.ComponentProductID, &c.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan recipe component: %w", err)
		}
		r.Components = append(r.Components, c)
	}
	return &r, rows.Err()
}

func (s *recipeService) Produce(ctx context.Context, performer Actor, recipeID int, outputQuantity decimal.Decimal, cooperatorIDs []int) (*ItemProduction, error) {
	if !outputQuantity.IsPositive() {
		return nil, fmt.Errorf("%w: output quantity must be positive, got %s", ErrInvalidInput, outputQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	recipe, err := fetchRecipeQ(ctx, tx, recipeID)
	if err != nil {
		return nil, err
	}
	if len(recipe.Components) == 0 {
		return nil, fmt.Errorf("%w: recipe %d has no components", ErrInvalidInput, recipeID)
	}

	totalCost := decimal.Zero
	totalInput := decimal.Zero
	for _, comp := range recipe.Components {
		needed := comp.Quantity.Mul(outputQuantity)
		consumed, err := s.stock.ConsumeTx(ctx, tx, comp.ComponentProductID, needed)
		if err != nil {
			return nil, fmt.Errorf("component product %d: %w", comp.ComponentProductID, err)
		}
		totalCost = totalCost.Add(consumed.ConsumedCost)
		totalInput = totalInput.Add(needed)
	}

	var inputQuantity *decimal.Decimal
	if !recipe.IsCountable {
		inputQuantity = &totalInput
	}
	unitCost := totalCost.Div(outputQuantity).RoundBank(2)

	lot, err := s.stock.AddLotTx(ctx, tx, recipe.ProductID, nil, outputQuantity, unitCost)
	if err != nil {
		return nil, err
	}

	var prod ItemProduction
	err = tx.QueryRow(ctx, `
		INSERT INTO item_productions (recipe_id, output_quantity, input_quantity, unit_cost, lot_id, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, recipe_id, output_quantity, input_quantity, unit_cost, lot_id, created_at
	`, recipeID, outputQuantity, inputQuantity, unitCost, lot.ID, performer.ID).Scan(
		&prod.ID, &prod.RecipeID, &prod.OutputQuantity, &prod.InputQuantity, &prod.UnitCost, &prod.LotID, &prod.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert production: %w", classifyDBError(err))
	}

	for _, userID := range cooperatorIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO item_production_cooperators (production_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, prod.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert cooperator %d: %w", userID, classifyDBError(err))
		}
	}
	prod.CooperatorIDs = cooperatorIDs

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit production: %w", classifyDBError(err))
	}
	return &prod, nil
}
