package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// maxUnitChainDepth bounds the base-unit walk; real unit chains are two or
// three levels (e.g. carton → pack → piece).
const maxUnitChainDepth = 16

// CatalogService manages master data: units, products, suppliers, menu
// structure, and dining tables.
type CatalogService interface {
	CreateUnit(ctx context.Context, name string, baseUnitID *int, conversionRatio int64) (*Unit, error)
	GetUnit(ctx context.Context, unitID int) (*Unit, error)
	// AtomicConversionRatio multiplies conversion ratios down the base-unit
	// chain to the atomic unit.
	AtomicConversionRatio(ctx context.Context, unitID int) (int64, error)

	CreateProduct(ctx context.Context, name string, typ ProductType, unitID *int, stockTraceable, countable, expiryTraceable bool) (*Product, error)
	GetProduct(ctx context.Context, productID int) (*Product, error)
	ListProducts(ctx context.Context, typ *ProductType) ([]Product, error)

	CreateSupplier(ctx context.Context, name, phone, address string) (*Supplier, error)
	LinkSupplierProduct(ctx context.Context, supplierID, productID int, brand *string) (*SupplierProduct, error)

	CreateMenuCategory(ctx context.Context, name string, position int) (*MenuCategory, error)
	CreateMenuItem(ctx context.Context, categoryID, productID int, name string, price decimal.Decimal) (*MenuItem, error)
	GetMenuItem(ctx context.Context, menuItemID int) (*MenuItem, error)

	CreateTable(ctx context.Context, name string, seats int) (*DiningTable, error)
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

// ── Units ────────────────────────────────────────────────────────────────────

// detectBaseCycle reports whether assigning baseID as the base of unitID
// would close a cycle, given the current parent map.
func detectBaseCycle(unitID int, baseID *int, parents map[int]*int) bool {
	seen := map[int]bool{unitID: true}
	cur := baseID
	for depth := 0; cur != nil && depth < maxUnitChainDepth; depth++ {
		if seen[*cur] {
			return true
		}
		seen[*cur] = true
		cur = parents[*cur]
	}
	return cur != nil
}

func (s *catalogService) loadUnitParents(ctx context.Context) (map[int]*int, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, base_unit_id FROM units")
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	parents := make(map[int]*int)
	for rows.Next() {
		var id int
		var base *int
		if err := rows.Scan(&id, &base); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		parents[id] = base
	}
	return parents, rows.Err()
}

func (s *catalogService) CreateUnit(ctx context.Context, name string, baseUnitID *int, conversionRatio int64) (*Unit, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: unit name is required", ErrInvalidInput)
	}
	if baseUnitID != nil && conversionRatio < 1 {
		return nil, fmt.Errorf("%w: conversion ratio must be a positive integer, got %d", ErrInvalidInput, conversionRatio)
	}
	if baseUnitID == nil {
		// Atomic units carry ratio 1 by definition.
		conversionRatio = 1
	}

	if baseUnitID != nil {
		parents, err := s.loadUnitParents(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := parents[*baseUnitID]; !ok {
			return nil, fmt.Errorf("%w: base unit %d not found", ErrInvalidInput, *baseUnitID)
		}
		// New unit has no id yet; 0 stands in and cannot collide.
		if detectBaseCycle(0, baseUnitID, parents) {
			return nil, fmt.Errorf("%w: base unit chain for %q would be cyclic", ErrInvalidInput, name)
		}
	}

	var u Unit
	err := s.pool.QueryRow(ctx, `
		INSERT INTO units (name, base_unit_id, conversion_ratio)
		VALUES ($1, $2, $3)
		RETURNING id, name, base_unit_id, conversion_ratio, created_at
	`, name, baseUnitID, conversionRatio).Scan(&u.ID, &u.Name, &u.BaseUnitID, &u.ConversionRatio, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %q: %w", name, err)
	}
	return &u, nil
}

func (s *catalogService) GetUnit(ctx context.Context, unitID int) (*Unit, error) {
	var u Unit
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, base_unit_id, conversion_ratio, created_at
		FROM units WHERE id = $1
	`, unitID).Scan(&u.ID, &u.Name, &u.BaseUnitID, &u.ConversionRatio, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unit %d not found", ErrInvalidInput, unitID)
		}
		return nil, fmt.Errorf("failed to fetch unit %d: %w", unitID, err)
	}
	return &u, nil
}

func (s *catalogService) AtomicConversionRatio(ctx context.Context, unitID int) (int64, error) {
	parents, err := s.loadUnitParents(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := parents[unitID]; !ok {
		return 0, fmt.Errorf("%w: unit %d not found", ErrInvalidInput, unitID)
	}

	ratios := make(map[int]int64)
	rows, err := s.pool.Query(ctx, "SELECT id, conversion_ratio FROM units")
	if err != nil {
		return 0, fmt.Errorf("failed to query unit ratios: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		var r int64
		if err := rows.Scan(&id, &r); err != nil {
			return 0, fmt.Errorf("failed to scan unit ratio: %w", err)
		}
		ratios[id] = r
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return rollUpRatio(unitID, parents, ratios)
}

// rollUpRatio walks the base chain multiplying ratios until the atomic unit.
func rollUpRatio(unitID int, parents map[int]*int, ratios map[int]int64) (int64, error) {
	total := int64(1)
	cur := unitID
	for depth := 0; depth < maxUnitChainDepth; depth++ {
		total *= ratios[cur]
		base := parents[cur]
		if base == nil {
			return total, nil
		}
		cur = *base
	}
	return 0, fmt.Errorf("%w: base unit chain from %d exceeds depth %d", ErrInvalidInput, unitID, maxUnitChainDepth)
}

// ── Products ─────────────────────────────────────────────────────────────────

func (s *catalogService) CreateProduct(ctx context.Context, name string, typ ProductType, unitID *int, stockTraceable, countable, expiryTraceable bool) (*Product, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	switch typ {
	case ProductRaw, ProductConsumable, ProductProcessed, ProductSellable:
	default:
		return nil, fmt.Errorf("%w: unknown product type %q", ErrInvalidInput, typ)
	}

	var p Product
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (name, type, unit_id, is_stock_traceable, is_countable, is_expiry_traceable)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, type, unit_id, is_stock_traceable, is_countable,
		          is_expiry_traceable, is_active, last_purchased_price, created_at
	`, name, typ, unitID, stockTraceable, countable, expiryTraceable).Scan(
		&p.ID, &p.Name, &p.Type, &p.UnitID, &p.IsStockTraceable, &p.IsCountable,
		&p.IsExpiryTraceable, &p.IsActive, &p.LastPurchasedPrice, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create product %q: %w", name, err)
	}
	return &p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID int) (*Product, error) {
	return fetchProductQ(ctx, s.pool, productID)
}

func fetchProductQ(ctx context.Context, q pgxQuerier, productID int) (*Product, error) {
	var p Product
	err := q.QueryRow(ctx, `
		SELECT id, name, type, unit_id, is_stock_traceable, is_countable,
		       is_expiry_traceable, is_active, last_purchased_price, created_at
		FROM products WHERE id = $1
	`, productID).Scan(
		&p.ID, &p.Name, &p.Type, &p.UnitID, &p.IsStockTraceable, &p.IsCountable,
		&p.IsExpiryTraceable, &p.IsActive, &p.LastPurchasedPrice, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d not found", ErrInvalidInput, productID)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	return &p, nil
}

func (s *catalogService) ListProducts(ctx context.Context, typ *ProductType) ([]Product, error) {
	query := `
		SELECT id, name, type, unit_id, is_stock_traceable, is_countable,
		       is_expiry_traceable, is_active, last_purchased_price, created_at
		FROM products
		WHERE is_active
	`
	args := []any{}
	if typ != nil {
		query += " AND type = $1"
		args = append(args, *typ)
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.UnitID, &p.IsStockTraceable,
			&p.IsCountable, &p.IsExpiryTraceable, &p.IsActive, &p.LastPurchasedPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ── Suppliers ────────────────────────────────────────────────────────────────

func (s *catalogService) CreateSupplier(ctx context.Context, name, phone, address string) (*Supplier, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: supplier name is required", ErrInvalidInput)
	}
	var sup Supplier
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suppliers (name, phone, address)
		VALUES ($1, $2, $3)
		RETURNING id, name, phone, address, is_active, created_at
	`, name, phone, address).Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Address, &sup.IsActive, &sup.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create supplier %q: %w", name, err)
	}
	return &sup, nil
}

func (s *catalogService) LinkSupplierProduct(ctx context.Context, supplierID, productID int, brand *string) (*SupplierProduct, error) {
	var sp SupplierProduct
	err := s.pool.QueryRow(ctx, `
		INSERT INTO supplier_products (supplier_id, product_id, brand)
		VALUES ($1, $2, $3)
		RETURNING id, supplier_id, product_id, brand, last_purchase_price, last_price_date
	`, supplierID, productID, brand).Scan(
		&sp.ID, &sp.SupplierID, &sp.ProductID, &sp.Brand, &sp.LastPurchasePrice, &sp.LastPriceDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link supplier %d to product %d: %w", supplierID, productID, err)
	}
	return &sp, nil
}

// ── Menu ─────────────────────────────────────────────────────────────────────

func (s *catalogService) CreateMenuCategory(ctx context.Context, name string, position int) (*MenuCategory, error) {
	var c MenuCategory
	err := s.pool.QueryRow(ctx, `
		INSERT INTO menu_categories (name, position)
		VALUES ($1, $2)
		RETURNING id, name, position, is_active
	`, name, position).Scan(&c.ID, &c.Name, &c.Position, &c.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create menu category %q: %w", name, err)
	}
	return &c, nil
}

func (s *catalogService) CreateMenuItem(ctx context.Context, categoryID, productID int, name string, price decimal.Decimal) (*MenuItem, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: menu price cannot be negative, got %s", ErrInvalidInput, price)
	}

	product, err := fetchProductQ(ctx, s.pool, productID)
	if err != nil {
		return nil, err
	}
	if product.Type != ProductSellable {
		return nil, fmt.Errorf("%w: menu item must map to a SELLABLE product, %q is %s",
			ErrInvalidInput, product.Name, product.Type)
	}

	var m MenuItem
	err = s.pool.QueryRow(ctx, `
		INSERT INTO menu_items (category_id, product_id, name, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, category_id, product_id, name, price, is_active
	`, categoryID, productID, name, price).Scan(&m.ID, &m.CategoryID, &m.ProductID, &m.Name, &m.Price, &m.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create menu item %q: %w", name, err)
	}
	return &m, nil
}

func (s *catalogService) GetMenuItem(ctx context.Context, menuItemID int) (*MenuItem, error) {
	var m MenuItem
	err := s.pool.QueryRow(ctx, `
		SELECT id, category_id, product_id, name, price, is_active
		FROM menu_items WHERE id = $1
	`, menuItemID).Scan(&m.ID, &m.CategoryID, &m.ProductID, &m.Name, &m.Price, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: menu item %d not found", ErrInvalidInput, menuItemID)
		}
		return nil, fmt.Errorf("failed to fetch menu item %d: %w", menuItemID, err)
	}
	return &m, nil
}

// ── Tables ───────────────────────────────────────────────────────────────────

func (s *catalogService) CreateTable(ctx context.Context, name string, seats int) (*DiningTable, error) {
	var t DiningTable
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tables (name, seats)
		VALUES ($1, $2)
		RETURNING id, name, seats, is_active
	`, name, seats).Scan(&t.ID, &t.Name, &t.Seats, &t.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create table %q: %w", name, err)
	}
	return &t, nil
}
