package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockEntry is one lot of a product: immutable provenance (product, source
// purchase item, total quantity, unit cost, creation time) plus the mutable
// consumption state. Only StockService mutates QuantityRemaining and
// IsRemaining.
type StockEntry struct {
	ID                int             `json:"id"`
	ProductID         int             `json:"product_id"`
	SourceItemID      *int            `json:"source_item_id,omitempty"`
	QuantityTotal     decimal.Decimal `json:"quantity_total"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	IsRemaining       bool            `json:"is_remaining"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// LotConsumption records how much of one lot a single consume call drained.
type LotConsumption struct {
	EntryID  int             `json:"entry_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Cost     decimal.Decimal `json:"cost"`
}

// ConsumeResult is the outcome of a FIFO consumption: the per-lot breakdown
// and the total cost at four decimal places.
type ConsumeResult struct {
	ConsumedCost decimal.Decimal  `json:"consumed_cost"`
	Lots         []LotConsumption `json:"lots"`
}
