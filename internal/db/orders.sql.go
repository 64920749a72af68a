package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, cart_id, status, address_id, discount_code, subtotal, discount_amount, shipping_fee, total_amount, currency, idempotency_key, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		i    Order
		cart pgtype.UUID
	)
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&cart,
		&i.Status,
		&i.AddressID,
		&i.DiscountCode,
		&i.Subtotal,
		&i.DiscountAmount,
		&i.ShippingFee,
		&i.TotalAmount,
		&i.Currency,
		&i.IdempotencyKey,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.CartID = uuidPtr(cart)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (customer_id, cart_id, status, address_id, discount_code, subtotal, discount_amount, shipping_fee, total_amount, currency, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.CustomerID,
		pgUUID(arg.CartID),
		arg.Status,
		arg.AddressID,
		arg.DiscountCode,
		arg.Subtotal,
		arg.DiscountAmount,
		arg.ShippingFee,
		arg.TotalAmount,
		arg.Currency,
		arg.IdempotencyKey,
	)
	return scanOrder(row)
}

const orderLineColumns = `id, order_id, product_id, variant_id, product_name, sku, quantity, original_price, unit_price, discount, line_total, applied_rule`

func scanOrderLine(row pgx.Row) (OrderLine, error) {
	var (
		i       OrderLine
		variant pgtype.UUID
	)
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&variant,
		&i.ProductName,
		&i.SKU,
		&i.Quantity,
		&i.OriginalPrice,
		&i.UnitPrice,
		&i.Discount,
		&i.LineTotal,
		&i.AppliedRule,
	)
	i.VariantID = uuidPtr(variant)
	return i, err
}

const createOrderLine = `-- name: CreateOrderLine :one
INSERT INTO order_lines (order_id, product_id, variant_id, product_name, sku, quantity, original_price, unit_price, discount, line_total, applied_rule)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderLineColumns

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, createOrderLine,
		arg.OrderID,
		arg.ProductID,
		pgUUID(arg.VariantID),
		arg.ProductName,
		arg.SKU,
		arg.Quantity,
		arg.OriginalPrice,
		arg.UnitPrice,
		arg.Discount,
		arg.LineTotal,
		arg.AppliedRule,
	)
	return scanOrderLine(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderByIdempotencyKey = `-- name: GetOrderByIdempotencyKey :one
SELECT ` + orderColumns + `
FROM orders
WHERE customer_id = $1 AND idempotency_key = $2
`

func (q *Queries) GetOrderByIdempotencyKey(ctx context.Context, arg GetOrderByIdempotencyKeyParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByIdempotencyKey, arg.CustomerID, arg.IdempotencyKey))
}

const listOrdersByCustomer = `-- name: ListOrdersByCustomer :many
SELECT ` + orderColumns + `
FROM orders
WHERE customer_id = $1
ORDER BY created_at DESC, id
`

func (q *Queries) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderLines = `-- name: ListOrderLines :many
SELECT ` + orderLineColumns + `
FROM order_lines
WHERE order_id = $1
ORDER BY position
`

func (q *Queries) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLine
	for rows.Next() {
		i, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :exec
UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
`

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error {
	_, err := q.db.Exec(ctx, updateOrderStatus, arg.ID, arg.Status)
	return err
}
