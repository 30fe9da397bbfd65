package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "UNPAID"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaidStatus    InvoiceStatus = "PAID"
	InvoiceVoidStatus    InvoiceStatus = "VOID"
)

// PaymentMethod is the tagged payment channel. POS and CARD_TRANSFER carry a
// destination account; CASH does not.
type PaymentMethod string

const (
	PayCash         PaymentMethod = "CASH"
	PayPOS          PaymentMethod = "POS"
	PayCardTransfer PaymentMethod = "CARD_TRANSFER"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentReversed  PaymentStatus = "REVERSED"
)

// SaleInvoice snapshots the sale's money at issuance. Totals never change
// afterwards; later item edits on the sale do not touch a non-VOID invoice.
type SaleInvoice struct {
	ID             int             `json:"id"`
	SaleID         int             `json:"sale_id"`
	Number         string          `json:"number"`
	Status         InvoiceStatus   `json:"status"`
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	VoidReason     *string         `json:"void_reason,omitempty"`
	IssuedAt       time.Time       `json:"issued_at"`
}

type SalePayment struct {
	ID                   int             `json:"id"`
	InvoiceID            int             `json:"invoice_id"`
	Method               PaymentMethod   `json:"method"`
	AmountApplied        decimal.Decimal `json:"amount_applied"`
	TipAmount            decimal.Decimal `json:"tip_amount"`
	AmountTotal          decimal.Decimal `json:"amount_total"`
	DestinationAccountID *int            `json:"destination_account_id,omitempty"`
	Status               PaymentStatus   `json:"status"`
	IdempotencyKey       string          `json:"idempotency_key"`
	PaidByID             int             `json:"paid_by_id"`
	CreatedAt            time.Time       `json:"created_at"`
}

type SaleRefund struct {
	ID        int             `json:"id"`
	InvoiceID int             `json:"invoice_id"`
	PaymentID int             `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
