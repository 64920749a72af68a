package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// Querier lists every query the core issues against the backing store.
type Querier interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (Variant, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
	AdjustProductStock(ctx context.Context, arg AdjustStockParams) (int32, error)
	AdjustVariantStock(ctx context.Context, arg AdjustStockParams) (int32, error)

	ListActivePriceLists(ctx context.Context, arg RuleScopeParams) ([]PriceRule, error)
	ListActiveQuantityBreaks(ctx context.Context, arg RuleScopeParams) ([]QuantityBreak, error)
	ListActiveCustomPricing(ctx context.Context, arg RuleScopeParams) ([]PriceRule, error)
	GetDiscountCodeByCode(ctx context.Context, code string) (DiscountCode, error)
	IncrementDiscountUsage(ctx context.Context, id uuid.UUID) (int32, error)
	GetShippingFeeTier(ctx context.Context, arg GetShippingFeeTierParams) (ShippingFeeTier, error)

	GetAddressForCustomer(ctx context.Context, arg GetAddressForCustomerParams) (Address, error)

	GetActiveCartByCustomer(ctx context.Context, customerID uuid.UUID) (Cart, error)
	CreateCart(ctx context.Context, customerID uuid.UUID) (Cart, error)
	UpdateCartStatus(ctx context.Context, arg UpdateCartStatusParams) error
	UpdateCartDiscountCode(ctx context.Context, arg UpdateCartDiscountCodeParams) error
	UpdateCartAddress(ctx context.Context, arg UpdateCartAddressParams) error
	UpdateCartTotals(ctx context.Context, arg UpdateCartTotalsParams) error
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]CartLine, error)
	GetCartLine(ctx context.Context, arg GetCartLineParams) (CartLine, error)
	FindCartLine(ctx context.Context, arg FindCartLineParams) (CartLine, error)
	CreateCartLine(ctx context.Context, arg CreateCartLineParams) (CartLine, error)
	UpdateCartLine(ctx context.Context, arg UpdateCartLineParams) error
	DeleteCartLine(ctx context.Context, arg DeleteCartLineParams) error
	DeleteCartLines(ctx context.Context, cartID uuid.UUID) error

	CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error)
	CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, arg GetOrderByIdempotencyKeyParams) (Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error)
	UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error

	InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error)
}

var _ Querier = (*Queries)(nil)

type AdjustStockParams struct {
	ID    uuid.UUID
	Delta int32
}

// RuleScopeParams narrows rule queries to the item being priced at instant At.
type RuleScopeParams struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	At        time.Time
}

type GetShippingFeeTierParams struct {
	Region string
	Method string
}

type GetAddressForCustomerParams struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
}

type UpdateCartStatusParams struct {
	ID     uuid.UUID
	Status CartStatus
}

type UpdateCartDiscountCodeParams struct {
	ID           uuid.UUID
	DiscountCode *string
}

type UpdateCartAddressParams struct {
	ID        uuid.UUID
	AddressID *uuid.UUID
}

type UpdateCartTotalsParams struct {
	ID             uuid.UUID
	Subtotal       int64
	ShippingFee    int64
	DiscountAmount int64
	TotalAmount    int64
}

type GetCartLineParams struct {
	ID     uuid.UUID
	CartID uuid.UUID
}

type FindCartLineParams struct {
	CartID    uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

type CreateCartLineParams struct {
	CartID        uuid.UUID
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	Quantity      int32
	UnitPrice     int64
	OriginalPrice int64
	Discount      int64
	AppliedRule   string
}

type UpdateCartLineParams struct {
	ID            uuid.UUID
	Quantity      int32
	UnitPrice     int64
	OriginalPrice int64
	Discount      int64
	AppliedRule   string
}

type DeleteCartLineParams struct {
	ID     uuid.UUID
	CartID uuid.UUID
}

type CreateOrderParams struct {
	CustomerID     uuid.UUID
	CartID         *uuid.UUID
	Status         OrderStatus
	AddressID      uuid.UUID
	DiscountCode   *string
	Subtotal       int64
	DiscountAmount int64
	ShippingFee    int64
	TotalAmount    int64
	Currency       string
	IdempotencyKey *string
}

type CreateOrderLineParams struct {
	OrderID       uuid.UUID
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	ProductName   string
	SKU           string
	Quantity      int32
	OriginalPrice int64
	UnitPrice     int64
	Discount      int64
	LineTotal     int64
	AppliedRule   string
}

type GetOrderByIdempotencyKeyParams struct {
	CustomerID     uuid.UUID
	IdempotencyKey string
}

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status OrderStatus
}

type InsertDomainEventParams struct {
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
}
