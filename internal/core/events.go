package core

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceSnapshot carries the frozen invoice totals shipped with the
// InvoicePaid event so consumers (print queue, display boards) never have to
// read the database.
type InvoiceSnapshot struct {
	InvoiceNumber  string          `json:"invoice_number"`
	SaleID         int             `json:"sale_id"`
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAt         time.Time       `json:"paid_at"`
}

// InvoicePaid is emitted after the transaction that moved an invoice to PAID
// has committed. Delivery is at-most-once; consumers needing stronger
// guarantees poll the invoice table.
type InvoicePaid struct {
	EventID   string          `json:"event_id"`
	InvoiceID int             `json:"invoice_id"`
	Snapshot  InvoiceSnapshot `json:"snapshot"`
}

// NewInvoicePaid assigns a fresh event id to the snapshot.
func NewInvoicePaid(invoiceID int, snap InvoiceSnapshot) InvoicePaid {
	return InvoicePaid{EventID: uuid.NewString(), InvoiceID: invoiceID, Snapshot: snap}
}

// EventPublisher hands domain events to out-of-core consumers. Publish is
// called outside any transaction and must not block the request for long.
type EventPublisher interface {
	Publish(ctx context.Context, event InvoicePaid)
}

// LogPublisher writes events to the process log. It is the default publisher
// when no queue is wired.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event InvoicePaid) {
	log.Printf("event invoice_paid id=%s invoice=%d number=%s total=%s",
		event.EventID, event.InvoiceID, event.Snapshot.InvoiceNumber, event.Snapshot.TotalAmount)
}

// NopPublisher discards events; used by tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, InvoicePaid) {}
