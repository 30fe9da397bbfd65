package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SaleService runs the sale state machine: OPEN → CLOSED on full payment or
// explicit close, OPEN → VOID on explicit cancellation. CLOSED is terminal.
type SaleService interface {
	OpenSale(ctx context.Context, opener Actor, saleType SaleType, tableID, guestCount *int, items []SaleItemInput) (*Sale, error)
	// AddItems appends lines to an OPEN sale and recomputes the total.
	AddItems(ctx context.Context, saleID int, items []SaleItemInput) (*Sale, error)
	// CloseSale is idempotent: closing a CLOSED sale returns it unchanged.
	CloseSale(ctx context.Context, performer Actor, saleID int) (*Sale, error)
	// CancelSale voids an OPEN sale. It is rejected while the live invoice
	// holds completed payments with un-refunded amounts.
	CancelSale(ctx context.Context, performer Actor, saleID int) (*Sale, error)
	GetSale(ctx context.Context, saleID int) (*Sale, error)
}

type saleService struct {
	pool *pgxpool.Pool
}

func NewSaleService(pool *pgxpool.Pool) SaleService {
	return &saleService{pool: pool}
}

func (s *saleService) OpenSale(ctx context.Context, opener Actor, saleType SaleType, tableID, guestCount *int, items []SaleItemInput) (*Sale, error) {
	switch saleType {
	case SaleDineIn, SaleTakeaway, SaleDelivery:
	default:
		return nil, fmt.Errorf("%w: unknown sale type %q", ErrInvalidInput, saleType)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one item", ErrInvalidInput)
	}
	if saleType == SaleDineIn && tableID == nil {
		return nil, fmt.Errorf("%w: dine-in sales require a table", ErrInvalidInput)
	}
	if guestCount != nil && *guestCount < 1 {
		return nil, fmt.Errorf("%w: guest count must be positive, got %d", ErrInvalidInput, *guestCount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if tableID != nil {
		var active bool
		err = tx.QueryRow(ctx, "SELECT is_active FROM tables WHERE id = $1", *tableID).Scan(&active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: table %d not found", ErrInvalidInput, *tableID)
			}
			return nil, fmt.Errorf("failed to fetch table %d: %w", *tableID, err)
		}
		if !active {
			return nil, fmt.Errorf("%w: table %d is not active", ErrInvalidInput, *tableID)
		}
	}

	var saleID int
	err = tx.QueryRow(ctx, `
		INSERT INTO sales (state, sale_type, opened_by_id, table_id, guest_count, total_amount)
		VALUES ('OPEN', $1, $2, $3, $4, 0)
		RETURNING id
	`, saleType, opener.ID, tableID, guestCount).Scan(&saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sale: %w", classifyDBError(err))
	}

	if err := insertSaleItemsTx(ctx, tx, saleID, nil, items); err != nil {
		return nil, err
	}
	if err := recomputeSaleTotalTx(ctx, tx, saleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", classifyDBError(err))
	}
	return s.GetSale(ctx, saleID)
}

// insertSaleItemsTx resolves each line's menu item to its SELLABLE product
// and inserts it, then recurses one level for extras with the new line's id
// as parent.
func insertSaleItemsTx(ctx context.Context, tx pgx.Tx, saleID int, parentItemID *int, items []SaleItemInput) error {
	for _, input := range items {
		if !input.Quantity.IsPositive() {
			return fmt.Errorf("%w: item quantity must be positive, got %s", ErrInvalidInput, input.Quantity)
		}

		var productID int
		var price decimal.Decimal
		var productType ProductType
		var active bool
		err := tx.QueryRow(ctx, `
			SELECT mi.product_id, mi.price, p.type, mi.is_active AND p.is_active
			FROM menu_items mi
			JOIN products p ON p.id = mi.product_id
			WHERE mi.id = $1
		`, input.MenuItemID).Scan(&productID, &price, &productType, &active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: menu item %d not found", ErrInvalidInput, input.MenuItemID)
			}
			return fmt.Errorf("failed to resolve menu item %d: %w", input.MenuItemID, err)
		}
		if !active {
			return fmt.Errorf("%w: menu item %d is not active", ErrInvalidInput, input.MenuItemID)
		}
		if productType != ProductSellable {
			return fmt.Errorf("%w: menu item %d does not map to a SELLABLE product", ErrInvalidInput, input.MenuItemID)
		}

		var itemID int
		err = tx.QueryRow(ctx, `
			INSERT INTO sale_items (sale_id, menu_item_id, product_id, quantity, unit_price, parent_item_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, saleID, input.MenuItemID, productID, input.Quantity, price, parentItemID).Scan(&itemID)
		if err != nil {
			return fmt.Errorf("failed to insert sale item: %w", classifyDBError(err))
		}

		if len(input.Extras) > 0 {
			if parentItemID != nil {
				return fmt.Errorf("%w: extras cannot carry their own extras", ErrInvalidInput)
			}
			if err := insertSaleItemsTx(ctx, tx, saleID, &itemID, input.Extras); err != nil {
				return err
			}
		}
	}
	return nil
}

// recomputeSaleTotalTx refreshes the denormalized sale total from its lines.
func recomputeSaleTotalTx(ctx context.Context, tx pgx.Tx, saleID int) error {
	_, err := tx.Exec(ctx, `
		UPDATE sales
		SET total_amount = (
			SELECT COALESCE(SUM(quantity * unit_price), 0)
			FROM sale_items WHERE sale_id = $1
		)
		WHERE id = $1
	`, saleID)
	if err != nil {
		return fmt.Errorf("failed to recompute sale total: %w", classifyDBError(err))
	}
	return nil
}

func (s *saleService) AddItems(ctx context.Context, saleID int, items []SaleItemInput) (*Sale, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items to add", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var state SaleState
	err = tx.QueryRow(ctx, "SELECT state FROM sales WHERE id = $1 FOR UPDATE", saleID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d not found", ErrInvalidInput, saleID)
		}
		return nil, fmt.Errorf("failed to lock sale %d: %w", saleID, classifyDBError(err))
	}
	if state != SaleOpen {
		return nil, fmt.Errorf("%w: cannot add items to a %s sale", ErrInvalidState, state)
	}

	if err := insertSaleItemsTx(ctx, tx, saleID, nil, items); err != nil {
		return nil, err
	}
	if err := recomputeSaleTotalTx(ctx, tx, saleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit items: %w", classifyDBError(err))
	}
	return s.GetSale(ctx, saleID)
}

func (s *saleService) CloseSale(ctx context.Context, performer Actor, saleID int) (*Sale, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var state SaleState
	err = tx.QueryRow(ctx, "SELECT state FROM sales WHERE id = $1 FOR UPDATE", saleID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d not found", ErrInvalidInput, saleID)
		}
		return nil, fmt.Errorf("failed to lock sale %d: %w", saleID, classifyDBError(err))
	}

	switch state {
	case SaleClosed:
		// Re-closing is a no-op.
		return s.GetSale(ctx, saleID)
	case SaleVoid:
		return nil, fmt.Errorf("%w: sale %d is VOID and cannot be closed", ErrInvalidState, saleID)
	}

	var itemCount int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM sale_items WHERE sale_id = $1", saleID).Scan(&itemCount); err != nil {
		return nil, fmt.Errorf("failed to count sale items: %w", err)
	}
	if itemCount == 0 {
		return nil, fmt.Errorf("%w: sale %d has no items", ErrInvalidState, saleID)
	}

	if err := closeSaleTx(ctx, tx, saleID, performer.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale close: %w", classifyDBError(err))
	}
	return s.GetSale(ctx, saleID)
}

// closeSaleTx flips an OPEN sale to CLOSED within the caller's transaction.
// Shared with the payment path, which auto-closes on full payment.
func closeSaleTx(ctx context.Context, tx pgx.Tx, saleID, closerID int) error {
	_, err := tx.Exec(ctx, `
		UPDATE sales
		SET state = 'CLOSED', closed_by_id = $1, closed_at = NOW()
		WHERE id = $2 AND state = 'OPEN'
	`, closerID, saleID)
	if err != nil {
		return fmt.Errorf("failed to close sale %d: %w", saleID, classifyDBError(err))
	}
	return nil
}

func (s *saleService) CancelSale(ctx context.Context, performer Actor, saleID int) (*Sale, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var state SaleState
	err = tx.QueryRow(ctx, "SELECT state FROM sales WHERE id = $1 FOR UPDATE", saleID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d not found", ErrInvalidInput, saleID)
		}
		return nil, fmt.Errorf("failed to lock sale %d: %w", saleID, classifyDBError(err))
	}
	if state != SaleOpen {
		return nil, fmt.Errorf("%w: only OPEN sales can be cancelled, sale %d is %s", ErrInvalidState, saleID, state)
	}

	// A live invoice with money on it blocks cancellation: refund first.
	var invoiceID int
	err = tx.QueryRow(ctx, `
		SELECT id FROM sale_invoices
		WHERE sale_id = $1 AND status <> 'VOID'
		FOR UPDATE
	`, saleID).Scan(&invoiceID)
	switch {
	case err == nil:
		net, err := netCompletedPaymentsTx(ctx, tx, invoiceID)
		if err != nil {
			return nil, err
		}
		if net.IsPositive() {
			return nil, fmt.Errorf("%w: invoice %d holds %s in completed payments; refund before cancelling",
				ErrHasCompletedPayments, invoiceID, net)
		}
		if _, err := tx.Exec(ctx, "UPDATE sale_invoices SET status = 'VOID' WHERE id = $1", invoiceID); err != nil {
			return nil, fmt.Errorf("failed to void invoice %d: %w", invoiceID, classifyDBError(err))
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No live invoice; nothing to void.
	default:
		return nil, fmt.Errorf("failed to fetch live invoice: %w", classifyDBError(err))
	}

	_, err = tx.Exec(ctx, `
		UPDATE sales SET state = 'VOID', closed_by_id = $1, closed_at = NOW() WHERE id = $2
	`, performer.ID, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to void sale %d: %w", saleID, classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale cancellation: %w", classifyDBError(err))
	}
	return s.GetSale(ctx, saleID)
}

func (s *saleService) GetSale(ctx context.Context, saleID int) (*Sale, error) {
	var sale Sale
	err := s.pool.QueryRow(ctx, `
		SELECT id, state, sale_type, opened_by_id, closed_by_id, table_id, guest_count,
		       total_amount, opened_at, closed_at
		FROM sales WHERE id = $1
	`, saleID).Scan(&sale.ID, &sale.State, &sale.Type, &sale.OpenedByID, &sale.ClosedByID,
		&sale.TableID, &sale.GuestCount, &sale.TotalAmount, &sale.OpenedAt, &sale.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d not found", ErrInvalidInput, saleID)
		}
		return nil, fmt.Errorf("failed to fetch sale %d: %w", saleID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, menu_item_id, product_id, quantity, unit_price, parent_item_id, material_cost
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.MenuItemID, &item.ProductID,
			&item.Quantity, &item.UnitPrice, &item.ParentItemID, &item.MaterialCost); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)
	}
	return &sale, rows.Err()
}
