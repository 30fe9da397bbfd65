package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// priceEpsilon is the tolerance for reconciling an authored total price with
// quantity × unit price, both at two decimal places.
var priceEpsilon = decimal.NewFromFloat(0.01)

// PurchaseService records purchase invoices and purchase returns. Committing
// an invoice appends one stock lot per stock-traceable line inside the same
// transaction, so money and stock never diverge.
type PurchaseService interface {
	RecordPurchase(ctx context.Context, staff Actor, issueDate string, supplierID *int,
		discountAmount decimal.Decimal, lines []PurchaseLineInput) (*PurchaseInvoice, error)
	GetPurchaseInvoice(ctx context.Context, invoiceID int) (*PurchaseInvoice, error)
	// ReturnPurchaseItem sends quantity back to the supplier, draining the
	// lots that originated from this purchase item in LIFO order. Lots from
	// other purchases are never touched.
	ReturnPurchaseItem(ctx context.Context, staff Actor, purchaseItemID int, quantity decimal.Decimal) (*PurchaseReturn, error)
}

type purchaseService struct {
	pool  *pgxpool.Pool
	stock StockService
	// deviationRatio is the configured plausibility threshold (0 disables).
	deviationRatio decimal.Decimal
}

func NewPurchaseService(pool *pgxpool.Pool, stock StockService, deviationRatio decimal.Decimal) PurchaseService {
	return &purchaseService{pool: pool, stock: stock, deviationRatio: deviationRatio}
}

// resolveLinePrice applies the unit-price rule: exactly one of unitPrice and
// totalPrice provided derives the other; both provided must agree within
// priceEpsilon at 2 dp.
func resolveLinePrice(quantity decimal.Decimal, unitPrice, totalPrice *decimal.Decimal) (unit, total decimal.Decimal, err error) {
	switch {
	case unitPrice == nil && totalPrice == nil:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: one of unit_price or total_price is required", ErrInvalidInput)
	case unitPrice != nil && totalPrice == nil:
		return *unitPrice, unitPrice.Mul(quantity), nil
	case unitPrice == nil && totalPrice != nil:
		return totalPrice.DivRound(quantity, 4), *totalPrice, nil
	default:
		diff := unitPrice.Mul(quantity).Sub(*totalPrice).Abs().RoundBank(2)
		if diff.GreaterThan(priceEpsilon) {
			return decimal.Zero, decimal.Zero, fmt.Errorf(
				"%w: unit_price × quantity (%s) disagrees with total_price (%s)",
				ErrInvalidInput, unitPrice.Mul(quantity).RoundBank(2), totalPrice.RoundBank(2))
		}
		return *unitPrice, *totalPrice, nil
	}
}

// checkPriceDeviation rejects a unit price that strays from the last known
// price by more than the configured ratio. A zero ratio disables the check.
func checkPriceDeviation(unitPrice, lastPrice, ratio decimal.Decimal) error {
	if ratio.IsZero() || lastPrice.IsZero() {
		return nil
	}
	deviation := unitPrice.Sub(lastPrice).Abs().Div(lastPrice)
	if deviation.GreaterThan(ratio) {
		return fmt.Errorf("%w: unit price %s deviates %s from last price %s (limit %s)",
			ErrPriceDeviation, unitPrice, deviation.RoundBank(4), lastPrice, ratio)
	}
	return nil
}

func (s *purchaseService) RecordPurchase(ctx context.Context, staff Actor, issueDate string, supplierID *int,
	discountAmount decimal.Decimal, lines []PurchaseLineInput) (*PurchaseInvoice, error) {

	if !staff.IsStaff && !staff.IsSuperuser {
		return nil, fmt.Errorf("%w: purchase invoices require a staff user", ErrForbidden)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: purchase invoice must have at least one line", ErrInvalidInput)
	}
	if discountAmount.IsNegative() {
		return nil, fmt.Errorf("%w: discount cannot be negative, got %s", ErrInvalidInput, discountAmount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID int
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_invoices (issue_date, staff_id, supplier_id, discount_amount, invoice_final_cost)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id
	`, issueDate, staff.ID, supplierID, discountAmount).Scan(&invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase invoice: %w", classifyDBError(err))
	}

	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive, got %s", ErrInvalidInput, i+1, line.Quantity)
		}

		// Lock the product row so concurrent purchases serialize their
		// last-price updates.
		var product Product
		err = tx.QueryRow(ctx, `
			SELECT id, name, type, is_stock_traceable, last_purchased_price
			FROM products WHERE id = $1 AND is_active
			FOR UPDATE
		`, line.ProductID).Scan(&product.ID, &product.Name, &product.Type,
			&product.IsStockTraceable, &product.LastPurchasedPrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: line %d: product %d not found", ErrInvalidInput, i+1, line.ProductID)
			}
			return nil, fmt.Errorf("line %d: failed to lock product: %w", i+1, classifyDBError(err))
		}
		if !product.Type.Purchasable() {
			return nil, fmt.Errorf("%w: line %d: %q is %s; only RAW and CONSUMABLE products can be purchased",
				ErrInvalidInput, i+1, product.Name, product.Type)
		}

		unitPrice, totalPrice, err := resolveLinePrice(line.Quantity, line.UnitPrice, line.TotalPrice)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if product.LastPurchasedPrice != nil {
			if err := checkPriceDeviation(unitPrice, *product.LastPurchasedPrice, s.deviationRatio); err != nil {
				return nil, fmt.Errorf("line %d (%s): %w", i+1, product.Name, err)
			}
		}

		var itemID int
		err = tx.QueryRow(ctx, `
			INSERT INTO purchase_items (invoice_id, product_id, quantity, unit_price, total_price, brand, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, invoiceID, line.ProductID, line.Quantity, unitPrice, totalPrice, line.Brand, line.ExpiresAt).Scan(&itemID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: line %d: product %q appears twice on the invoice", ErrInvalidInput, i+1, product.Name)
			}
			return nil, fmt.Errorf("line %d: failed to insert purchase item: %w", i+1, classifyDBError(err))
		}

		if product.IsStockTraceable {
			if _, err := s.stock.AddLotTx(ctx, tx, line.ProductID, &itemID, line.Quantity, unitPrice); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}

		_, err = tx.Exec(ctx,
			"UPDATE products SET last_purchased_price = $1 WHERE id = $2",
			unitPrice, line.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to update last purchased price: %w", i+1, classifyDBError(err))
		}

		if supplierID != nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO supplier_products (supplier_id, product_id, brand, last_purchase_price, last_price_date)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (supplier_id, product_id, COALESCE(brand, ''))
				DO UPDATE SET last_purchase_price = EXCLUDED.last_purchase_price,
				              last_price_date     = EXCLUDED.last_price_date
			`, *supplierID, line.ProductID, line.Brand, unitPrice, issueDate)
			if err != nil {
				return nil, fmt.Errorf("line %d: failed to upsert supplier price: %w", i+1, classifyDBError(err))
			}
		}
	}

	// Final cost is aggregated DB-side so a concurrently observed invoice can
	// never show a header total the lines do not back.
	_, err = tx.Exec(ctx, `
		UPDATE purchase_invoices
		SET invoice_final_cost = (
			SELECT COALESCE(SUM(quantity * unit_price), 0)
			FROM purchase_items WHERE invoice_id = $1
		) - discount_amount
		WHERE id = $1
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute invoice final cost: %w", classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase invoice: %w", classifyDBError(err))
	}

	return s.GetPurchaseInvoice(ctx, invoiceID)
}

func (s *purchaseService) GetPurchaseInvoice(ctx context.Context, invoiceID int) (*PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, issue_date::text, staff_id, supplier_id, discount_amount, invoice_final_cost, created_at
		FROM purchase_invoices WHERE id = $1
	`, invoiceID).Scan(&inv.ID, &inv.IssueDate, &inv.StaffID, &inv.SupplierID,
		&inv.DiscountAmount, &inv.InvoiceFinalCost, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase invoice %d not found", ErrInvalidInput, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch purchase invoice %d: %w", invoiceID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, product_id, quantity, unit_price, total_price, brand, expires_at
		FROM purchase_items
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.Brand, &item.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	return &inv, rows.Err()
}

func (s *purchaseService) ReturnPurchaseItem(ctx context.Context, staff Actor, purchaseItemID int, quantity decimal.Decimal) (*PurchaseReturn, error) {
	if !staff.IsStaff && !staff.IsSuperuser {
		return nil, fmt.Errorf("%w: purchase returns require a staff user", ErrForbidden)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: return quantity must be positive, got %s", ErrInvalidInput, quantity)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var purchasedQty decimal.Decimal
	var productID int
	err = tx.QueryRow(ctx,
		"SELECT quantity, product_id FROM purchase_items WHERE id = $1 FOR UPDATE",
		purchaseItemID,
	).Scan(&purchasedQty, &productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase item %d not found", ErrInvalidInput, purchaseItemID)
		}
		return nil, fmt.Errorf("failed to lock purchase item %d: %w", purchaseItemID, classifyDBError(err))
	}

	var priorReturns decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM purchase_returns WHERE purchase_item_id = $1",
		purchaseItemID,
	).Scan(&priorReturns)
	if err != nil {
		return nil, fmt.Errorf("failed to sum prior returns: %w", classifyDBError(err))
	}
	if priorReturns.Add(quantity).GreaterThan(purchasedQty) {
		return nil, fmt.Errorf("%w: returning %s would exceed purchased quantity %s (already returned %s)",
			ErrInvalidInput, quantity, purchasedQty, priorReturns)
	}

	// Drain this purchase's own lots newest-first. Returns undo the most
	// recent stock, not the oldest, so FIFO consumption history stays intact.
	rows, err := tx.Query(ctx, `
		SELECT id, quantity_remaining
		FROM stock_entries
		WHERE source_item_id = $1 AND is_remaining
		ORDER BY created_at DESC, id DESC
		FOR UPDATE
	`, purchaseItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lots for purchase item %d: %w", purchaseItemID, classifyDBError(err))
	}

	type lotRow struct {
		id        int
		remaining decimal.Decimal
	}
	var lots []lotRow
	for rows.Next() {
		var l lotRow
		if err := rows.Scan(&l.id, &l.remaining); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", classifyDBError(err))
	}

	left := quantity
	for _, l := range lots {
		if !left.IsPositive() {
			break
		}
		delta := decimal.Min(l.remaining, left)
		newRemaining := l.remaining.Sub(delta)
		_, err := tx.Exec(ctx, `
			UPDATE stock_entries
			SET quantity_remaining = $1, is_remaining = $2
			WHERE id = $3
		`, newRemaining, newRemaining.IsPositive(), l.id)
		if err != nil {
			return nil, fmt.Errorf("failed to drain lot %d: %w", l.id, classifyDBError(err))
		}
		left = left.Sub(delta)
	}
	if left.IsPositive() {
		return nil, fmt.Errorf("%w: purchase item %d has only %s traceable stock left to return",
			ErrInsufficientStock, purchaseItemID, quantity.Sub(left))
	}

	var ret PurchaseReturn
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_returns (purchase_item_id, staff_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id, purchase_item_id, staff_id, quantity, created_at
	`, purchaseItemID, staff.ID, quantity).Scan(&ret.ID, &ret.PurchaseItemID, &ret.StaffID, &ret.Quantity, &ret.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase return: %w", classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase return: %w", classifyDBError(err))
	}
	return &ret, nil
}
