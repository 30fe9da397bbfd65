package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies what a product may be used for: purchasing,
// recipes, or direct sale.
type ProductType string

const (
	ProductRaw        ProductType = "RAW"
	ProductConsumable ProductType = "CONSUMABLE"
	ProductProcessed  ProductType = "PROCESSED"
	ProductSellable   ProductType = "SELLABLE"
)

// Purchasable reports whether products of this type may appear on purchase
// invoice lines.
func (t ProductType) Purchasable() bool {
	return t == ProductRaw || t == ProductConsumable
}

// RecipeOutput reports whether products of this type may be produced by a
// recipe. RAW products never have a recipe.
func (t ProductType) RecipeOutput() bool {
	return t == ProductProcessed || t == ProductSellable || t == ProductConsumable
}

// Unit is a measurement unit. Non-atomic units point at a base unit with a
// positive integer conversion ratio; the base-unit chain is acyclic.
type Unit struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	BaseUnitID      *int      `json:"base_unit_id,omitempty"`
	ConversionRatio int64     `json:"conversion_ratio"`
	CreatedAt       time.Time `json:"created_at"`
}

type Product struct {
	ID                 int              `json:"id"`
	Name               string           `json:"name"`
	Type               ProductType      `json:"type"`
	UnitID             *int             `json:"unit_id,omitempty"`
	IsStockTraceable   bool             `json:"is_stock_traceable"`
	IsCountable        bool             `json:"is_countable"`
	IsExpiryTraceable  bool             `json:"is_expiry_traceable"`
	IsActive           bool             `json:"is_active"`
	LastPurchasedPrice *decimal.Decimal `json:"last_purchased_price,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

type Supplier struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// SupplierProduct links a supplier to a product it sells. Brand may be nil;
// a nil brand is its own distinct key within (supplier, product).
type SupplierProduct struct {
	ID                int              `json:"id"`
	SupplierID        int              `json:"supplier_id"`
	ProductID         int              `json:"product_id"`
	Brand             *string          `json:"brand,omitempty"`
	LastPurchasePrice *decimal.Decimal `json:"last_purchase_price,omitempty"`
	LastPriceDate     *time.Time       `json:"last_price_date,omitempty"`
}

type MenuCategory struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	IsActive bool   `json:"is_active"`
}

// MenuItem is the sellable face of a SELLABLE product: the price the guest
// pays and the category it is listed under.
type MenuItem struct {
	ID         int             `json:"id"`
	CategoryID int             `json:"category_id"`
	ProductID  int             `json:"product_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	IsActive   bool            `json:"is_active"`
}

// DiningTable is a physical table; DINE_IN sales must reference one.
type DiningTable struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Seats    int    `json:"seats"`
	IsActive bool   `json:"is_active"`
}
