package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getProduct = `-- name: GetProduct :one
SELECT id, name, sku, original_price, final_price, stock, created_at, updated_at
FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.SKU,
		&i.OriginalPrice,
		&i.FinalPrice,
		&i.Stock,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getVariant = `-- name: GetVariant :one
SELECT id, product_id, name, sku, original_price, final_price, stock, created_at, updated_at
FROM product_variants
WHERE id = $1
`

func (q *Queries) GetVariant(ctx context.Context, id uuid.UUID) (Variant, error) {
	row := q.db.QueryRow(ctx, getVariant, id)
	var i Variant
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.Name,
		&i.SKU,
		&i.OriginalPrice,
		&i.FinalPrice,
		&i.Stock,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCustomer = `-- name: GetCustomer :one
SELECT id, name, market_id
FROM customers
WHERE id = $1
`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx, getCustomer, id)
	var (
		i        Customer
		marketID pgtype.UUID
	)
	err := row.Scan(&i.ID, &i.Name, &marketID)
	i.MarketID = uuidPtr(marketID)
	return i, err
}

const adjustProductStock = `-- name: AdjustProductStock :one
UPDATE products
SET stock = stock + $2, updated_at = now()
WHERE id = $1 AND stock + $2 >= 0
RETURNING stock
`

// AdjustProductStock applies delta and returns the new stock. pgx.ErrNoRows is
// returned when the product is missing or the decrement would go negative.
func (q *Queries) AdjustProductStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	row := q.db.QueryRow(ctx, adjustProductStock, arg.ID, arg.Delta)
	var stock int32
	err := row.Scan(&stock)
	return stock, err
}

const adjustVariantStock = `-- name: AdjustVariantStock :one
UPDATE product_variants
SET stock = stock + $2, updated_at = now()
WHERE id = $1 AND stock + $2 >= 0
RETURNING stock
`

func (q *Queries) AdjustVariantStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	row := q.db.QueryRow(ctx, adjustVariantStock, arg.ID, arg.Delta)
	var stock int32
	err := row.Scan(&stock)
	return stock, err
}

const getAddressForCustomer = `-- name: GetAddressForCustomer :one
SELECT id, customer_id, receiver_name, phone, region, city, postal_code, address_line1, address_line2, created_at
FROM addresses
WHERE id = $1 AND customer_id = $2
`

func (q *Queries) GetAddressForCustomer(ctx context.Context, arg GetAddressForCustomerParams) (Address, error) {
	row := q.db.QueryRow(ctx, getAddressForCustomer, arg.ID, arg.CustomerID)
	var i Address
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.ReceiverName,
		&i.Phone,
		&i.Region,
		&i.City,
		&i.PostalCode,
		&i.AddressLine1,
		&i.AddressLine2,
		&i.CreatedAt,
	)
	return i, err
}

const getShippingFeeTier = `-- name: GetShippingFeeTier :one
SELECT id, region, method, fee, is_active
FROM shipping_fee_tiers
WHERE lower(region) = lower($1) AND method = $2 AND is_active
`

func (q *Queries) GetShippingFeeTier(ctx context.Context, arg GetShippingFeeTierParams) (ShippingFeeTier, error) {
	row := q.db.QueryRow(ctx, getShippingFeeTier, arg.Region, arg.Method)
	var i ShippingFeeTier
	err := row.Scan(&i.ID, &i.Region, &i.Method, &i.Fee, &i.IsActive)
	return i, err
}
