package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleState string

const (
	SaleOpen   SaleState = "OPEN"
	SaleClosed SaleState = "CLOSED"
	SaleVoid   SaleState = "VOID"
)

type SaleType string

const (
	SaleDineIn   SaleType = "DINE_IN"
	SaleTakeaway SaleType = "TAKEAWAY"
	SaleDelivery SaleType = "DELIVERY"
)

type Sale struct {
	ID          int             `json:"id"`
	State       SaleState       `json:"state"`
	Type        SaleType        `json:"sale_type"`
	OpenedByID  int             `json:"opened_by_id"`
	ClosedByID  *int            `json:"closed_by_id,omitempty"`
	TableID     *int            `json:"table_id,omitempty"`
	GuestCount  *int            `json:"guest_count,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	Items       []SaleItem      `json:"items,omitempty"`
}

// SaleItem is one ordered line. Extras hang off their parent line via
// ParentItemID. MaterialCost stays nil until the paying transaction resolves
// it through the stock ledger.
type SaleItem struct {
	ID           int              `json:"id"`
	SaleID       int              `json:"sale_id"`
	MenuItemID   int              `json:"menu_item_id"`
	ProductID    int              `json:"product_id"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	ParentItemID *int             `json:"parent_item_id,omitempty"`
	MaterialCost *decimal.Decimal `json:"material_cost,omitempty"`
}

// SaleItemInput is an ordered line as authored at the register. Extras are
// nested one level deep under the line they modify.
type SaleItemInput struct {
	MenuItemID int             `json:"menu_item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Extras     []SaleItemInput `json:"extras,omitempty"`
}
