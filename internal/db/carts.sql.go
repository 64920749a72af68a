package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const cartColumns = `id, customer_id, status, discount_code, address_id, subtotal, shipping_fee, discount_amount, total_amount, created_at, updated_at`

func scanCart(row pgx.Row) (Cart, error) {
	var (
		i       Cart
		address pgtype.UUID
	)
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.Status,
		&i.DiscountCode,
		&address,
		&i.Subtotal,
		&i.ShippingFee,
		&i.DiscountAmount,
		&i.TotalAmount,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.AddressID = uuidPtr(address)
	return i, err
}

const getActiveCartByCustomer = `-- name: GetActiveCartByCustomer :one
SELECT ` + cartColumns + `
FROM carts
WHERE customer_id = $1 AND status = 'active'
FOR UPDATE
`

// GetActiveCartByCustomer locks the customer's active cart row for the
// remainder of the transaction.
func (q *Queries) GetActiveCartByCustomer(ctx context.Context, customerID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getActiveCartByCustomer, customerID))
}

const createCart = `-- name: CreateCart :one
INSERT INTO carts (customer_id)
VALUES ($1)
RETURNING ` + cartColumns

func (q *Queries) CreateCart(ctx context.Context, customerID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, createCart, customerID))
}

const updateCartStatus = `-- name: UpdateCartStatus :exec
UPDATE carts SET status = $2, updated_at = now() WHERE id = $1
`

func (q *Queries) UpdateCartStatus(ctx context.Context, arg UpdateCartStatusParams) error {
	_, err := q.db.Exec(ctx, updateCartStatus, arg.ID, arg.Status)
	return err
}

const updateCartDiscountCode = `-- name: UpdateCartDiscountCode :exec
UPDATE carts SET discount_code = $2, updated_at = now() WHERE id = $1
`

func (q *Queries) UpdateCartDiscountCode(ctx context.Context, arg UpdateCartDiscountCodeParams) error {
	_, err := q.db.Exec(ctx, updateCartDiscountCode, arg.ID, arg.DiscountCode)
	return err
}

const updateCartAddress = `-- name: UpdateCartAddress :exec
UPDATE carts SET address_id = $2, updated_at = now() WHERE id = $1
`

func (q *Queries) UpdateCartAddress(ctx context.Context, arg UpdateCartAddressParams) error {
	_, err := q.db.Exec(ctx, updateCartAddress, arg.ID, pgUUID(arg.AddressID))
	return err
}

const updateCartTotals = `-- name: UpdateCartTotals :exec
UPDATE carts
SET subtotal = $2, shipping_fee = $3, discount_amount = $4, total_amount = $5, updated_at = now()
WHERE id = $1
`

func (q *Queries) UpdateCartTotals(ctx context.Context, arg UpdateCartTotalsParams) error {
	_, err := q.db.Exec(ctx, updateCartTotals,
		arg.ID,
		arg.Subtotal,
		arg.ShippingFee,
		arg.DiscountAmount,
		arg.TotalAmount,
	)
	return err
}

const cartLineColumns = `id, cart_id, product_id, variant_id, quantity, unit_price, original_price, discount, applied_rule, created_at, updated_at`

func scanCartLine(row pgx.Row) (CartLine, error) {
	var (
		i       CartLine
		variant pgtype.UUID
	)
	err := row.Scan(
		&i.ID,
		&i.CartID,
		&i.ProductID,
		&variant,
		&i.Quantity,
		&i.UnitPrice,
		&i.OriginalPrice,
		&i.Discount,
		&i.AppliedRule,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.VariantID = uuidPtr(variant)
	return i, err
}

const listCartLines = `-- name: ListCartLines :many
SELECT ` + cartLineColumns + `
FROM cart_lines
WHERE cart_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListCartLines(ctx context.Context, cartID uuid.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, listCartLines, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CartLine
	for rows.Next() {
		i, err := scanCartLine(rows)
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

const getCartLine = `-- name: GetCartLine :one
SELECT ` + cartLineColumns + `
FROM cart_lines
WHERE id = $1 AND cart_id = $2
`

func (q *Queries) GetCartLine(ctx context.Context, arg GetCartLineParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, getCartLine, arg.ID, arg.CartID))
}

const findCartLine = `-- name: FindCartLine :one
SELECT ` + cartLineColumns + `
FROM cart_lines
WHERE cart_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3
`

func (q *Queries) FindCartLine(ctx context.Context, arg FindCartLineParams) (CartLine, error) {
	return scanCartLine(q.db.QueryRow(ctx, findCartLine, arg.CartID, arg.ProductID, pgUUID(arg.VariantID)))
}

const createCartLine = `-- name: CreateCartLine :one
INSERT INTO cart_lines (cart_id, product_id, variant_id, quantity, unit_price, original_price, discount, applied_rule)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + cartLineColumns

func (q *Queries) CreateCartLine(ctx context.Context, arg CreateCartLineParams) (CartLine, error) {
	row := q.db.QueryRow(ctx, createCartLine,
		arg.CartID,
		arg.ProductID,
		pgUUID(arg.VariantID),
		arg.Quantity,
		arg.UnitPrice,
		arg.OriginalPrice,
		arg.Discount,
		arg.AppliedRule,
	)
	return scanCartLine(row)
}

const updateCartLine = `-- name: UpdateCartLine :exec
UPDATE cart_lines
SET quantity = $2, unit_price = $3, original_price = $4, discount = $5, applied_rule = $6, updated_at = now()
WHERE id = $1
`

func (q *Queries) UpdateCartLine(ctx context.Context, arg UpdateCartLineParams) error {
	_, err := q.db.Exec(ctx, updateCartLine,
		arg.ID,
		arg.Quantity,
		arg.UnitPrice,
		arg.OriginalPrice,
		arg.Discount,
		arg.AppliedRule,
	)
	return err
}

const deleteCartLine = `-- name: DeleteCartLine :exec
DELETE FROM cart_lines WHERE id = $1 AND cart_id = $2
`

func (q *Queries) DeleteCartLine(ctx context.Context, arg DeleteCartLineParams) error {
	_, err := q.db.Exec(ctx, deleteCartLine, arg.ID, arg.CartID)
	return err
}

const deleteCartLines = `-- name: DeleteCartLines :exec
DELETE FROM cart_lines WHERE cart_id = $1
`

func (q *Queries) DeleteCartLines(ctx context.Context, cartID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteCartLines, cartID)
	return err
}
