package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseInvoice struct {
	ID               int             `json:"id"`
	IssueDate        string          `json:"issue_date"`
	StaffID          int             `json:"staff_id"`
	SupplierID       *int            `json:"supplier_id,omitempty"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	InvoiceFinalCost decimal.Decimal `json:"invoice_final_cost"`
	CreatedAt        time.Time       `json:"created_at"`
	Items            []PurchaseItem  `json:"items,omitempty"`
}

type PurchaseItem struct {
	ID         int             `json:"id"`
	InvoiceID  int             `json:"invoice_id"`
	ProductID  int             `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Brand      *string         `json:"brand,omitempty"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// PurchaseLineInput is one authored line of a purchase invoice. Exactly one
// of UnitPrice and TotalPrice must be set; the other is derived. When both
// are set they must agree within priceEpsilon at two decimal places.
type PurchaseLineInput struct {
	ProductID  int              `json:"product_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
	Brand      *string          `json:"brand,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
}

// PurchaseReturn is an audit record of quantity sent back to the supplier.
type PurchaseReturn struct {
	ID             int             `json:"id"`
	PurchaseItemID int             `json:"purchase_item_id"`
	StaffID        int             `json:"staff_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	CreatedAt      time.Time       `json:"created_at"`
}
