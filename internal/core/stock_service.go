package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService owns the FIFO stock ledger. All remaining-quantity mutations
// in the whole system go through ConsumeTx and AddLotTx; every other
// component treats stock_entries as read-only.
type StockService interface {
	// CurrentStock sums quantity_remaining over the product's non-depleted lots.
	CurrentStock(ctx context.Context, productID int) (decimal.Decimal, error)
	// Lots returns the product's lots in FIFO order, depleted ones included.
	Lots(ctx context.Context, productID int) ([]StockEntry, error)

	// AddLot appends a lot in its own transaction.
	AddLot(ctx context.Context, productID int, sourceItemID *int, quantity, unitCost decimal.Decimal) (*StockEntry, error)

	// TX-scoped operations: the caller owns the transaction boundary, so lot
	// mutations commit atomically with the purchase, production, payment or
	// adjustment that caused them.

	// AddLotTx appends a lot with quantity_remaining = quantity_total.
	AddLotTx(ctx context.Context, tx pgx.Tx, productID int, sourceItemID *int, quantity, unitCost decimal.Decimal) (*StockEntry, error)
	// ConsumeTx drains amount from the oldest non-depleted lots. Candidate
	// lots are locked in (created_at, id) order with skip-locked semantics so
	// concurrent consumers on the same product never deadlock. If the lots
	// exhaust before amount is satisfied the call fails with
	// ErrInsufficientStock and the enclosing transaction must roll back.
	ConsumeTx(ctx context.Context, tx pgx.Tx, productID int, amount decimal.Decimal) (*ConsumeResult, error)
	// CurrentStockTx is CurrentStock inside the caller's transaction.
	CurrentStockTx(ctx context.Context, tx pgx.Tx, productID int) (decimal.Decimal, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

func (s *stockService) CurrentStock(ctx context.Context, productID int) (decimal.Decimal, error) {
	return currentStockQ(ctx, s.pool, productID)
}

func (s *stockService) CurrentStockTx(ctx context.Context, tx pgx.Tx, productID int) (decimal.Decimal, error) {
	return currentStockQ(ctx, tx, productID)
}

func currentStockQ(ctx context.Context, q pgxQuerier, productID int) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM stock_entries
		WHERE product_id = $1 AND is_remaining
	`, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum stock for product %d: %w", productID, classifyDBError(err))
	}
	return total, nil
}

func (s *stockService) Lots(ctx context.Context, productID int) ([]StockEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, source_item_id, quantity_total, quantity_remaining,
		       unit_cost, is_remaining, expires_at, created_at
		FROM stock_entries
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots for product %d: %w", productID, err)
	}
	defer rows.Close()

	var lots []StockEntry
	for rows.Next() {
		var e StockEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.SourceItemID, &e.QuantityTotal,
			&e.QuantityRemaining, &e.UnitCost, &e.IsRemaining, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, e)
	}
	return lots, rows.Err()
}

func (s *stockService) AddLot(ctx context.Context, productID int, sourceItemID *int, quantity, unitCost decimal.Decimal) (*StockEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.AddLotTx(ctx, tx, productID, sourceItemID, quantity, unitCost)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit lot: %w", err)
	}
	return entry, nil
}

func (s *stockService) AddLotTx(ctx context.Context, tx pgx.Tx, productID int, sourceItemID *int, quantity, unitCost decimal.Decimal) (*StockEntry, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: lot quantity must be positive, got %s", ErrInvalidInput, quantity)
	}
	if unitCost.IsNegative() {
		return nil, fmt.Errorf("%w: lot unit cost cannot be negative, got %s", ErrInvalidInput, unitCost)
	}

	var e StockEntry
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_entries (product_id, source_item_id, quantity_total, quantity_remaining, unit_cost, is_remaining)
		VALUES ($1, $2, $3, $3, $4, true)
		RETURNING id, product_id, source_item_id, quantity_total, quantity_remaining,
		          unit_cost, is_remaining, expires_at, created_at
	`, productID, sourceItemID, quantity, unitCost).Scan(
		&e.ID, &e.ProductID, &e.SourceItemID, &e.QuantityTotal, &e.QuantityRemaining,
		&e.UnitCost, &e.IsRemaining, &e.ExpiresAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert lot for product %d: %w", productID, classifyDBError(err))
	}
	return &e, nil
}

func (s *stockService) ConsumeTx(ctx context.Context, tx pgx.Tx, productID int, amount decimal.Decimal) (*ConsumeResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: consume amount must be positive, got %s", ErrInvalidInput, amount)
	}

	// Lock candidates up front. SKIP LOCKED lets unrelated consumers proceed
	// while keeping (created_at, id) order deterministic for the rows we get.
	rows, err := tx.Query(ctx, `
		SELECT id, quantity_remaining, unit_cost
		FROM stock_entries
		WHERE product_id = $1 AND is_remaining
		ORDER BY created_at, id
		FOR UPDATE SKIP LOCKED
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lots for product %d: %w", productID, classifyDBError(err))
	}

	type candidate struct {
		id        int
		remaining decimal.Decimal
		unitCost  decimal.Decimal
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.remaining, &c.unitCost); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan lot candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lot candidates: %w", classifyDBError(err))
	}

	result := &ConsumeResult{ConsumedCost: decimal.Zero}
	left := amount
	for _, c := range candidates {
		if !left.IsPositive() {
			break
		}
		delta := decimal.Min(c.remaining, left)
		newRemaining := c.remaining.Sub(delta)

		_, err := tx.Exec(ctx, `
			UPDATE stock_entries
			SET quantity_remaining = $1, is_remaining = $2
			WHERE id = $3
		`, newRemaining, newRemaining.IsPositive(), c.id)
		if err != nil {
			return nil, fmt.Errorf("failed to drain lot %d: %w", c.id, classifyDBError(err))
		}

		cost := delta.Mul(c.unitCost)
		result.ConsumedCost = result.ConsumedCost.Add(cost)
		result.Lots = append(result.Lots, LotConsumption{
			EntryID:  c.id,
			Quantity: delta,
			UnitCost: c.unitCost,
			Cost:     cost,
		})
		left = left.Sub(delta)
	}

	if left.IsPositive() {
		return nil, fmt.Errorf("%w: product %d short by %s of %s requested",
			ErrInsufficientStock, productID, left, amount)
	}

	result.ConsumedCost = result.ConsumedCost.RoundBank(4)
	return result, nil
}
