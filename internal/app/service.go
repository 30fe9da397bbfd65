package app

import (
	"context"

	"cafepos/internal/core"
)

// ApplicationService is the single interface all outer adapters (web, jobs)
// call. It layers permission checks and bounded retry on top of the core
// services; it contains no presentation logic.
type ApplicationService interface {
	// OpenSale opens a new sale with its initial item lines.
	OpenSale(ctx context.Context, actor core.Actor, req OpenSaleRequest) (*core.Sale, error)

	// AddSaleItems appends lines to an OPEN sale.
	AddSaleItems(ctx context.Context, actor core.Actor, saleID int, items []core.SaleItemInput) (*core.Sale, error)

	// CloseSale closes an OPEN sale; closing a CLOSED sale is a no-op.
	CloseSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error)

	// CancelSale voids an OPEN sale and its live invoice. Rejected while the
	// invoice holds un-refunded completed payments.
	CancelSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error)

	// GetSale returns the sale; material costs are blanked for actors
	// without the view-item-cost permission.
	GetSale(ctx context.Context, actor core.Actor, saleID int) (*core.Sale, error)

	// InitiateInvoice issues (or returns the existing live) invoice for a sale.
	InitiateInvoice(ctx context.Context, actor core.Actor, req InitiateInvoiceRequest) (*core.SaleInvoice, error)

	// ProcessPayment applies a payment; full payment closes the sale.
	ProcessPayment(ctx context.Context, actor core.Actor, req ProcessPaymentRequest) (*core.SalePayment, error)

	// Refund reverses part of a completed payment.
	Refund(ctx context.Context, actor core.Actor, req RefundRequest) (*core.SaleRefund, error)

	// CancelInvoice voids an invoice with no net completed payments.
	CancelInvoice(ctx context.Context, actor core.Actor, invoiceID int, reason string) (*core.SaleInvoice, error)

	GetInvoice(ctx context.Context, actor core.Actor, invoiceID int) (*core.SaleInvoice, error)

	// RecordPurchase commits a purchase invoice, creating one stock lot per
	// stock-traceable line.
	RecordPurchase(ctx context.Context, actor core.Actor, req RecordPurchaseRequest) (*core.PurchaseInvoice, error)

	// ReturnPurchaseItem sends purchased quantity back to the supplier.
	ReturnPurchaseItem(ctx context.Context, actor core.Actor, purchaseItemID int, quantity Quantity) (*core.PurchaseReturn, error)

	// ProduceItem runs a recipe, consuming component stock and appending the
	// produced lot.
	ProduceItem(ctx context.Context, actor core.Actor, req ProduceItemRequest) (*core.ItemProduction, error)

	// AdjustStock reconciles a counted quantity against the ledger. Returns
	// nil when the count already matches.
	AdjustStock(ctx context.Context, actor core.Actor, productID int, currentQuantity Quantity) (*core.ProductAdjustmentReport, error)

	// DailyReport recomputes and stores the reconciliation report for a date.
	DailyReport(ctx context.Context, reportDate string, reported core.ReportedTotals) (*core.DailyFinancialReport, error)

	// GetDailyReport reads a stored report, serving immutable past dates from
	// the cache when possible.
	GetDailyReport(ctx context.Context, reportDate string) (*core.DailyFinancialReport, error)
}
