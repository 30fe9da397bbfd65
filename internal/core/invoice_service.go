package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InvoiceService owns the invoice lifecycle (UNPAID → PARTIALLY_PAID → PAID,
// or → VOID), payment application, refunds, and the auto-close of the sale
// when its invoice is fully paid.
type InvoiceService interface {
	// InitiateInvoice issues an invoice for the sale, snapshotting its
	// totals. A sale with a live (non-VOID) invoice gets that same invoice
	// back unchanged. taxAmount nil applies the configured tax rate.
	InitiateInvoice(ctx context.Context, actor Actor, saleID int, discountAmount decimal.Decimal, taxAmount *decimal.Decimal) (*SaleInvoice, error)

	// ProcessPayment applies a completed payment. If the invoice reaches
	// PAID and the sale is OPEN, material costs are resolved and the sale is
	// closed with the payer as closer, all in one transaction; the
	// InvoicePaid event fires after commit.
	ProcessPayment(ctx context.Context, payer Actor, invoiceID int, method PaymentMethod,
		amountApplied, tipAmount decimal.Decimal, destinationAccountID *int) (*SalePayment, error)

	// Refund reverses part of a completed payment. A fully refunded PAID
	// invoice demotes to PARTIALLY_PAID with net zero; it never auto-voids.
	Refund(ctx context.Context, actor Actor, paymentID int, amount decimal.Decimal, method PaymentMethod) (*SaleRefund, error)

	// CancelInvoice voids an invoice with no net completed payments. The
	// underlying sale stays OPEN and may be re-invoiced.
	CancelInvoice(ctx context.Context, actor Actor, invoiceID int, reason string) (*SaleInvoice, error)

	GetInvoice(ctx context.Context, invoiceID int) (*SaleInvoice, error)
	GetPayment(ctx context.Context, paymentID int) (*SalePayment, error)
}

type invoiceService struct {
	pool                *pgxpool.Pool
	stock               StockService
	publisher           EventPublisher
	taxRate             decimal.Decimal // percent, 0–99
	defaultPOSAccountID *int
}

func NewInvoiceService(pool *pgxpool.Pool, stock StockService, publisher EventPublisher,
	taxRate decimal.Decimal, defaultPOSAccountID *int) InvoiceService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &invoiceService{
		pool:                pool,
		stock:               stock,
		publisher:           publisher,
		taxRate:             taxRate,
		defaultPOSAccountID: defaultPOSAccountID,
	}
}

// ── Invoice issuance ─────────────────────────────────────────────────────────

func (s *invoiceService) InitiateInvoice(ctx context.Context, actor Actor, saleID int, discountAmount decimal.Decimal, taxAmount *decimal.Decimal) (*SaleInvoice, error) {
	if discountAmount.IsNegative() {
		return nil, fmt.Errorf("%w: discount cannot be negative, got %s", ErrInvalidInput, discountAmount)
	}
	if taxAmount != nil && taxAmount.IsNegative() {
		return nil, fmt.Errorf("%w: tax cannot be negative, got %s", ErrInvalidInput, *taxAmount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var state SaleState
	var subtotal decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT state, total_amount FROM sales WHERE id = $1 FOR UPDATE",
		saleID,
	).Scan(&state, &subtotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d not found", ErrInvalidInput, saleID)
		}
		return nil, fmt.Errorf("failed to lock sale %d: %w", saleID, classifyDBError(err))
	}
	if state == SaleVoid {
		return nil, fmt.Errorf("%w: sale %d is VOID and cannot be invoiced", ErrInvalidState, saleID)
	}

	// Idempotence: a live invoice is returned unchanged.
	var existingID int
	err = tx.QueryRow(ctx,
		"SELECT id FROM sale_invoices WHERE sale_id = $1 AND status <> 'VOID'",
		saleID,
	).Scan(&existingID)
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", err)
		}
		return s.GetInvoice(ctx, existingID)
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to check live invoice: %w", classifyDBError(err))
	}

	var itemCount int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM sale_items WHERE sale_id = $1", saleID).Scan(&itemCount); err != nil {
		return nil, fmt.Errorf("failed to count sale items: %w", err)
	}
	if itemCount == 0 {
		return nil, fmt.Errorf("%w: sale %d has no items to invoice", ErrInvalidState, saleID)
	}

	tax := decimal.Zero
	if taxAmount != nil {
		tax = *taxAmount
	} else if s.taxRate.IsPositive() {
		tax = subtotal.Mul(s.taxRate).Div(decimal.New(100, 0)).RoundBank(2)
	}
	total := subtotal.Sub(discountAmount).Add(tax)
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: discount %s exceeds subtotal %s", ErrInvalidInput, discountAmount, subtotal)
	}

	number, err := nextInvoiceNumberTx(ctx, tx, time.Now().UTC().Year())
	if err != nil {
		return nil, err
	}

	var invoiceID int
	err = tx.QueryRow(ctx, `
		INSERT INTO sale_invoices (sale_id, number, status, subtotal_amount, discount_amount, tax_amount, total_amount)
		VALUES ($1, $2, 'UNPAID', $3, $4, $5, $6)
		RETURNING id
	`, saleID, number, subtotal, discountAmount, tax, total).Scan(&invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", classifyDBError(err))
	}
	return s.GetInvoice(ctx, invoiceID)
}

// nextInvoiceNumberTx allocates the next INV-YYYY-NNNNNN number. The per-year
// counter row serializes concurrent allocations; numbers are monotone within
// a calendar year.
func nextInvoiceNumberTx(ctx context.Context, tx pgx.Tx, year int) (string, error) {
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_number = invoice_sequences.last_number + 1
		RETURNING last_number
	`, year).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number for %d: %w", year, classifyDBError(err))
	}
	return fmt.Sprintf("INV-%d-%06d", year, lastNumber), nil
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (s *invoiceService) ProcessPayment(ctx context.Context, payer Actor, invoiceID int, method PaymentMethod,
	amountApplied, tipAmount decimal.Decimal, destinationAccountID *int) (*SalePayment, error) {

	if !amountApplied.IsPositive() {
		return nil, fmt.Errorf("%w: amount applied must be positive, got %s", ErrInvalidInput, amountApplied)
	}
	if tipAmount.IsNegative() {
		return nil, fmt.Errorf("%w: tip cannot be negative, got %s", ErrInvalidInput, tipAmount)
	}
	switch method {
	case PayCash:
		destinationAccountID = nil
	case PayPOS:
		if destinationAccountID == nil {
			destinationAccountID = s.defaultPOSAccountID
		}
		if destinationAccountID == nil {
			return nil, fmt.Errorf("%w: POS payments require a destination account", ErrInvalidInput)
		}
	case PayCardTransfer:
		if destinationAccountID == nil {
			return nil, fmt.Errorf("%w: card-to-card payments require a destination account", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inv SaleInvoice
	err = tx.QueryRow(ctx, `
		SELECT id, sale_id, number, status, subtotal_amount, discount_amount, tax_amount, total_amount, issued_at
		FROM sale_invoices WHERE id = $1
		FOR UPDATE
	`, invoiceID).Scan(&inv.ID, &inv.SaleID, &inv.Number, &inv.Status, &inv.SubtotalAmount,
		&inv.DiscountAmount, &inv.TaxAmount, &inv.TotalAmount, &inv.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d not found", ErrInvalidInput, invoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, classifyDBError(err))
	}
	if inv.Status == InvoiceVoidStatus {
		return nil, fmt.Errorf("%w: invoice %s is void", ErrInvoiceVoid, inv.Number)
	}

	applied, err := appliedCompletedTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	newApplied := applied.Add(amountApplied)
	if newApplied.GreaterThan(inv.TotalAmount) {
		return nil, fmt.Errorf("%w: payment of %s would exceed invoice total %s (already applied %s)",
			ErrInvalidInput, amountApplied, inv.TotalAmount, applied)
	}

	var payment SalePayment
	err = tx.QueryRow(ctx, `
		INSERT INTO sale_payments (invoice_id, method, amount_applied, tip_amount, amount_total,
		                           destination_account_id, status, idempotency_key, paid_by_id)
		VALUES ($1, $2, $3, $4, $3 + $4, $5, 'COMPLETED', $6, $7)
		RETURNING id, invoice_id, method, amount_applied, tip_amount, amount_total,
		          destination_account_id, status, idempotency_key, paid_by_id, created_at
	`, invoiceID, method, amountApplied, tipAmount, destinationAccountID, uuid.NewString(), payer.ID).Scan(
		&payment.ID, &payment.InvoiceID, &payment.Method, &payment.AmountApplied, &payment.TipAmount,
		&payment.AmountTotal, &payment.DestinationAccountID, &payment.Status, &payment.IdempotencyKey,
		&payment.PaidByID, &payment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", classifyDBError(err))
	}

	newStatus := InvoicePartiallyPaid
	if newApplied.Equal(inv.TotalAmount) {
		newStatus = InvoicePaidStatus
	}
	if _, err := tx.Exec(ctx, "UPDATE sale_invoices SET status = $1 WHERE id = $2", newStatus, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", classifyDBError(err))
	}

	var paidEvent *InvoicePaid
	if newStatus == InvoicePaidStatus {
		var saleState SaleState
		err = tx.QueryRow(ctx, "SELECT state FROM sales WHERE id = $1 FOR UPDATE", inv.SaleID).Scan(&saleState)
		if err != nil {
			return nil, fmt.Errorf("failed to lock sale %d: %w", inv.SaleID, classifyDBError(err))
		}
		// Material costs resolve whenever the invoice reaches PAID, even if
		// the sale was already closed explicitly; only the auto-close itself
		// depends on the sale still being OPEN.
		if err := s.resolveMaterialCostsTx(ctx, tx, inv.SaleID); err != nil {
			return nil, err
		}
		if saleState == SaleOpen {
			if err := closeSaleTx(ctx, tx, inv.SaleID, payer.ID); err != nil {
				return nil, err
			}
		}

		event := NewInvoicePaid(invoiceID, InvoiceSnapshot{
			InvoiceNumber:  inv.Number,
			SaleID:         inv.SaleID,
			SubtotalAmount: inv.SubtotalAmount,
			DiscountAmount: inv.DiscountAmount,
			TaxAmount:      inv.TaxAmount,
			TotalAmount:    inv.TotalAmount,
			PaidAt:         time.Now().UTC(),
		})
		paidEvent = &event
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", classifyDBError(err))
	}

	// The event only fires once the payment is durable.
	if paidEvent != nil {
		s.publisher.Publish(ctx, *paidEvent)
	}
	return &payment, nil
}

// resolveMaterialCostsTx fixes the FIFO material cost of each unresolved,
// stock-traceable sold line. A line whose stock cannot cover the sale keeps a
// NULL material cost; selling the last croissant must not fail the payment.
func (s *invoiceService) resolveMaterialCostsTx(ctx context.Context, tx pgx.Tx, saleID int) error {
	rows, err := tx.Query(ctx, `
		SELECT si.id, si.product_id, si.quantity
		FROM sale_items si
		JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1 AND si.material_cost IS NULL AND p.is_stock_traceable
		ORDER BY si.id
	`, saleID)
	if err != nil {
		return fmt.Errorf("failed to query unresolved sale items: %w", classifyDBError(err))
	}

	type pendingItem struct {
		id        int
		productID int
		quantity  decimal.Decimal
	}
	var pending []pendingItem
	for rows.Next() {
		var it pendingItem
		if err := rows.Scan(&it.id, &it.productID, &it.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan sale item: %w", err)
		}
		pending = append(pending, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating sale items: %w", classifyDBError(err))
	}

	for _, it := range pending {
		available, err := s.stock.CurrentStockTx(ctx, tx, it.productID)
		if err != nil {
			return err
		}
		if available.LessThan(it.quantity) {
			continue
		}
		consumed, err := s.stock.ConsumeTx(ctx, tx, it.productID, it.quantity)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				// Raced a concurrent consumer past the availability check.
				continue
			}
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE sale_items SET material_cost = $1 WHERE id = $2",
			consumed.ConsumedCost, it.id,
		); err != nil {
			return fmt.Errorf("failed to record material cost for item %d: %w", it.id, classifyDBError(err))
		}
	}
	return nil
}

// ── Refunds ──────────────────────────────────────────────────────────────────

func (s *invoiceService) Refund(ctx context.Context, actor Actor, paymentID int, amount decimal.Decimal, method PaymentMethod) (*SaleRefund, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive, got %s", ErrInvalidInput, amount)
	}
	switch method {
	case PayCash, PayPOS, PayCardTransfer:
	default:
		return nil, fmt.Errorf("%w: unknown refund method %q", ErrInvalidInput, method)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var payment SalePayment
	err = tx.QueryRow(ctx, `
		SELECT id, invoice_id, method, amount_applied, status
		FROM sale_payments WHERE id = $1
		FOR UPDATE
	`, paymentID).Scan(&payment.ID, &payment.InvoiceID, &payment.Method, &payment.AmountApplied, &payment.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment %d not found", ErrInvalidInput, paymentID)
		}
		return nil, fmt.Errorf("failed to lock payment %d: %w", paymentID, classifyDBError(err))
	}
	if payment.Status != PaymentCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be refunded, payment %d is %s",
			ErrInvalidState, paymentID, payment.Status)
	}

	var invTotal decimal.Decimal
	var invStatus InvoiceStatus
	err = tx.QueryRow(ctx,
		"SELECT total_amount, status FROM sale_invoices WHERE id = $1 FOR UPDATE",
		payment.InvoiceID,
	).Scan(&invTotal, &invStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice %d: %w", payment.InvoiceID, classifyDBError(err))
	}

	var refundedOnPayment decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM sale_refunds
		WHERE payment_id = $1 AND status = 'COMPLETED'
	`, paymentID).Scan(&refundedOnPayment)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payment refunds: %w", classifyDBError(err))
	}
	if refundedOnPayment.Add(amount).GreaterThan(payment.AmountApplied) {
		return nil, fmt.Errorf("%w: refunding %s would exceed payment's applied amount %s (already refunded %s)",
			ErrRefundExceeded, amount, payment.AmountApplied, refundedOnPayment)
	}

	refundedOnInvoice, err := refundedCompletedTx(ctx, tx, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if refundedOnInvoice.Add(amount).GreaterThan(invTotal) {
		return nil, fmt.Errorf("%w: refunding %s would exceed invoice total %s (already refunded %s)",
			ErrRefundExceeded, amount, invTotal, refundedOnInvoice)
	}

	var refund SaleRefund
	err = tx.QueryRow(ctx, `
		INSERT INTO sale_refunds (invoice_id, payment_id, amount, method, status)
		VALUES ($1, $2, $3, $4, 'COMPLETED')
		RETURNING id, invoice_id, payment_id, amount, method, status, created_at
	`, payment.InvoiceID, paymentID, amount, method).Scan(
		&refund.ID, &refund.InvoiceID, &refund.PaymentID, &refund.Amount,
		&refund.Method, &refund.Status, &refund.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert refund: %w", classifyDBError(err))
	}

	// Recompute status from net position. Full refund leaves the invoice
	// PARTIALLY_PAID at net zero, never VOID.
	if invStatus != InvoiceVoidStatus {
		net, err := netCompletedPaymentsTx(ctx, tx, payment.InvoiceID)
		if err != nil {
			return nil, err
		}
		newStatus := InvoicePaidStatus
		if net.LessThan(invTotal) {
			newStatus = InvoicePartiallyPaid
		}
		if _, err := tx.Exec(ctx,
			"UPDATE sale_invoices SET status = $1 WHERE id = $2",
			newStatus, payment.InvoiceID,
		); err != nil {
			return nil, fmt.Errorf("failed to update invoice status: %w", classifyDBError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", classifyDBError(err))
	}
	return &refund, nil
}

// ── Cancellation ─────────────────────────────────────────────────────────────

func (s *invoiceService) CancelInvoice(ctx context.Context, actor Actor, invoiceID int, reason string) (*SaleInvoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status InvoiceStatus
	err = tx.QueryRow(ctx, "SELECT status FROM sale_invoices WHERE id = $1 FOR UPDATE", invoiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d not found", ErrInvalidInput, invoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, classifyDBError(err))
	}
	if status == InvoiceVoidStatus {
		return nil, fmt.Errorf("%w: invoice %d is already void", ErrInvalidState, invoiceID)
	}

	net, err := netCompletedPaymentsTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if net.IsPositive() {
		return nil, fmt.Errorf("%w: invoice %d holds %s in completed payments; refund before cancelling",
			ErrHasCompletedPayments, invoiceID, net)
	}

	var voidReason *string
	if reason != "" {
		voidReason = &reason
	}
	if _, err := tx.Exec(ctx,
		"UPDATE sale_invoices SET status = 'VOID', void_reason = $1 WHERE id = $2",
		voidReason, invoiceID,
	); err != nil {
		return nil, fmt.Errorf("failed to void invoice %d: %w", invoiceID, classifyDBError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice cancellation: %w", classifyDBError(err))
	}
	return s.GetInvoice(ctx, invoiceID)
}

// ── Queries & helpers ────────────────────────────────────────────────────────

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID int) (*SaleInvoice, error) {
	var inv SaleInvoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, sale_id, number, status, subtotal_amount, discount_amount, tax_amount,
		       total_amount, void_reason, issued_at
		FROM sale_invoices WHERE id = $1
	`, invoiceID).Scan(&inv.ID, &inv.SaleID, &inv.Number, &inv.Status, &inv.SubtotalAmount,
		&inv.DiscountAmount, &inv.TaxAmount, &inv.TotalAmount, &inv.VoidReason, &inv.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d not found", ErrInvalidInput, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}

func (s *invoiceService) GetPayment(ctx context.Context, paymentID int) (*SalePayment, error) {
	var p SalePayment
	err := s.pool.QueryRow(ctx, `
		SELECT id, invoice_id, method, amount_applied, tip_amount, amount_total,
		       destination_account_id, status, idempotency_key, paid_by_id, created_at
		FROM sale_payments WHERE id = $1
	`, paymentID).Scan(&p.ID, &p.InvoiceID, &p.Method, &p.AmountApplied, &p.TipAmount, &p.AmountTotal,
		&p.DestinationAccountID, &p.Status, &p.IdempotencyKey, &p.PaidByID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment %d not found", ErrInvalidInput, paymentID)
		}
		return nil, fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}
	return &p, nil
}

func appliedCompletedTx(ctx context.Context, q pgxQuerier, invoiceID int) (decimal.Decimal, error) {
	var applied decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_applied), 0) FROM sale_payments
		WHERE invoice_id = $1 AND status = 'COMPLETED'
	`, invoiceID).Scan(&applied)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum applied payments: %w", classifyDBError(err))
	}
	return applied, nil
}

func refundedCompletedTx(ctx context.Context, q pgxQuerier, invoiceID int) (decimal.Decimal, error) {
	var refunded decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM sale_refunds
		WHERE invoice_id = $1 AND status = 'COMPLETED'
	`, invoiceID).Scan(&refunded)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds: %w", classifyDBError(err))
	}
	return refunded, nil
}

// netCompletedPaymentsTx is Σ completed applied − Σ completed refunds.
func netCompletedPaymentsTx(ctx context.Context, q pgxQuerier, invoiceID int) (decimal.Decimal, error) {
	applied, err := appliedCompletedTx(ctx, q, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	refunded, err := refundedCompletedTx(ctx, q, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	return applied.Sub(refunded), nil
}
