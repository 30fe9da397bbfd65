package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipe produces a non-RAW product from normalized component weights.
type Recipe struct {
	ID              int               `json:"id"`
	ProductID       int               `json:"product_id"`
	IsCountable     bool              `json:"is_countable"`
	Instructions    string            `json:"instructions"`
	PreparedMinutes int               `json:"prepared_minutes"`
	CreatedAt       time.Time         `json:"created_at"`
	Components      []RecipeComponent `json:"components,omitempty"`
}

// RecipeComponent holds the stored, normalized weight: the amount of the
// component consumed per one atomic unit of recipe output. Weights of a
// recipe always sum to exactly 1.
type RecipeComponent struct {
	ID                 int             `json:"id"`
	RecipeID           int             `json:"recipe_id"`
	ComponentProductID int             `json:"component_product_id"`
	Quantity           decimal.Decimal `json:"quantity"`
}

// ComponentInput is an authored component line in arbitrary positive units;
// normalization happens on write.
type ComponentInput struct {
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// ItemProduction is one production run: how much was made, what it cost per
// unit, and who cooked. InputQuantity is nil for countable recipes.
type ItemProduction struct {
	ID             int              `json:"id"`
	RecipeID       int              `json:"recipe_id"`
	OutputQuantity decimal.Decimal  `json:"output_quantity"`
	InputQuantity  *decimal.Decimal `json:"input_quantity,omitempty"`
	UnitCost       decimal.Decimal  `json:"unit_cost"`
	LotID          int              `json:"lot_id"`
	CooperatorIDs  []int            `json:"cooperator_ids,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
