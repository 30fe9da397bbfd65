package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProductAdjustmentReport is the audit record of one stock count correction.
// Cost is set only on decreases and equals the FIFO cost of the drained delta.
type ProductAdjustmentReport struct {
	ID               int              `json:"id"`
	ProductID        int              `json:"product_id"`
	StaffID          int              `json:"staff_id"`
	PreviousQuantity decimal.Decimal  `json:"previous_quantity"`
	CurrentQuantity  decimal.Decimal  `json:"current_quantity"`
	Cost             *decimal.Decimal `json:"cost,omitempty"`
	ReportDate       time.Time        `json:"report_date"`
}

// AdjustmentService reconciles counted stock against the ledger.
type AdjustmentService interface {
	// AdjustStock moves the product's ledger quantity to currentQuantity.
	// Shrinking drains lots FIFO and records the drained cost; growing
	// appends a synthetic lot priced at the last purchase price, falling
	// back to the newest lot's unit cost. Counting what the ledger already
	// says is a no-op and returns nil.
	AdjustStock(ctx context.Context, staff Actor, productID int, currentQuantity decimal.Decimal) (*ProductAdjustmentReport, error)

	ListAdjustments(ctx context.Context, productID int) ([]ProductAdjustmentReport, error)
}

type adjustmentService struct {
	pool  *pgxpool.Pool
	stock StockService
}

func NewAdjustmentService(pool *pgxpool.Pool, stock StockService) AdjustmentService {
	return &adjustmentService{pool: pool, stock: stock}
}

func (s *adjustmentService) AdjustStock(ctx context.Context, staff Actor, productID int, currentQuantity decimal.Decimal) (*ProductAdjustmentReport, error) {
	if !staff.IsStaff && !staff.IsSuperuser {
		return nil, fmt.Errorf("%w: only staff can adjust stock", ErrForbidden)
	}
	if currentQuantity.IsNegative() {
		return nil, fmt.Errorf("%w: counted quantity cannot be negative, got %s", ErrInvalidInput, currentQuantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastPrice *decimal.Decimal
	var traceable bool
	err = tx.QueryRow(ctx,
		"SELECT last_purchased_price, is_stock_traceable FROM products WHERE id = $1 FOR UPDATE",
		productID,
	).Scan(&lastPrice, &traceable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d not found", ErrInvalidInput, productID)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", productID, classifyDBError(err))
	}
	if !traceable {
		return nil, fmt.Errorf("%w: product %d is not stock traceable", ErrInvalidInput, productID)
	}

	previous, err := s.stock.CurrentStockTx(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	var cost *decimal.Decimal
	switch {
	case currentQuantity.Equal(previous):
		return nil, nil

	case currentQuantity.LessThan(previous):
		consumed, err := s.stock.ConsumeTx(ctx, tx, productID, previous.Sub(currentQuantity))
		if err != nil {
			return nil, err
		}
		cost = &consumed.ConsumedCost

	default:
		unitCost, err := s.syntheticLotCostTx(ctx, tx, productID, lastPrice)
		if err != nil {
			return nil, err
		}
		if _, err := s.stock.AddLotTx(ctx, tx, productID, nil, currentQuantity.Sub(previous), unitCost); err != nil {
			return nil, err
		}
	}

	var report ProductAdjustmentReport
	err = tx.QueryRow(ctx, `
		INSERT INTO product_adjustment_reports (product_id, staff_id, previous_quantity, current_quantity, cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, product_id, staff_id, previous_quantity, current_quantity, cost, report_date
	`, productID, staff.ID, previous, currentQuantity, cost).Scan(
		&report.ID, &report.ProductID, &report.StaffID,
		&report.PreviousQuantity, &report.CurrentQuantity, &report.Cost, &report.ReportDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert adjustment report: %w", classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment: %w", classifyDBError(err))
	}
	return &report, nil
}

// syntheticLotCostTx prices an upward correction: the last purchase price if
// recorded, otherwise the newest lot's unit cost. A product with neither has
// no defensible valuation, so the adjustment fails.
func (s *adjustmentService) syntheticLotCostTx(ctx context.Context, tx pgx.Tx, productID int, lastPrice *decimal.Decimal) (decimal.Decimal, error) {
	if lastPrice != nil {
		return *lastPrice, nil
	}

	var newestCost decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT unit_cost FROM stock_entries
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, productID).Scan(&newestCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: product %d has no purchase price and no prior lot to value the added stock",
				ErrInvalidInput, productID)
		}
		return decimal.Zero, fmt.Errorf("failed to read newest lot cost: %w", classifyDBError(err))
	}
	return newestCost, nil
}

func (s *adjustmentService) ListAdjustments(ctx context.Context, productID int) ([]ProductAdjustmentReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, staff_id, previous_quantity, current_quantity, cost, report_date
		FROM product_adjustment_reports
		WHERE product_id = $1
		ORDER BY report_date, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments for product %d: %w", productID, err)
	}
	defer rows.Close()

	var reports []ProductAdjustmentReport
	for rows.Next() {
		var r ProductAdjustmentReport
		if err := rows.Scan(&r.ID, &r.ProductID, &r.StaffID, &r.PreviousQuantity,
			&r.CurrentQuantity, &r.Cost, &r.ReportDate); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
