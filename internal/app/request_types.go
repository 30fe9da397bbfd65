package app

import (
	"github.com/shopspring/decimal"

	"cafepos/internal/core"
)

// Quantity aliases the decimal type so adapters do not import it twice.
type Quantity = decimal.Decimal

// OpenSaleRequest is the input for opening a new sale.
type OpenSaleRequest struct {
	Type       core.SaleType        `json:"sale_type"`
	TableID    *int                 `json:"table_id,omitempty"`
	GuestCount *int                 `json:"guest_count,omitempty"`
	Items      []core.SaleItemInput `json:"items"`
}

// InitiateInvoiceRequest is the input for issuing an invoice against a sale.
// TaxAmount nil applies the configured tax rate.
type InitiateInvoiceRequest struct {
	SaleID         int              `json:"sale_id"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TaxAmount      *decimal.Decimal `json:"tax_amount,omitempty"`
}

// ProcessPaymentRequest is the input for applying a payment to an invoice.
type ProcessPaymentRequest struct {
	InvoiceID            int                `json:"invoice_id"`
	Method               core.PaymentMethod `json:"method"`
	AmountApplied        decimal.Decimal    `json:"amount_applied"`
	TipAmount            decimal.Decimal    `json:"tip_amount"`
	DestinationAccountID *int               `json:"destination_account_id,omitempty"`
}

// RefundRequest is the input for reversing part of a completed payment.
type RefundRequest struct {
	PaymentID int                `json:"payment_id"`
	Amount    decimal.Decimal    `json:"amount"`
	Method    core.PaymentMethod `json:"method"`
}

// RecordPurchaseRequest is the input for committing a purchase invoice.
// IssueDate is YYYY-MM-DD; empty means today.
type RecordPurchaseRequest struct {
	IssueDate      string                   `json:"issue_date"`
	SupplierID     *int                     `json:"supplier_id,omitempty"`
	DiscountAmount decimal.Decimal          `json:"discount_amount"`
	Lines          []core.PurchaseLineInput `json:"lines"`
}

// ProduceItemRequest is the input for one production run of a recipe.
type ProduceItemRequest struct {
	RecipeID       int             `json:"recipe_id"`
	OutputQuantity decimal.Decimal `json:"output_quantity"`
	CooperatorIDs  []int           `json:"cooperator_ids,omitempty"`
}
