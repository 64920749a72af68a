package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountKind enumerates how a rule or code reduces a price.
type DiscountKind string

const (
	DiscountKindPercentage   DiscountKind = "percentage"
	DiscountKindFixed        DiscountKind = "fixed"
	DiscountKindFreeShipping DiscountKind = "free_shipping"
)

// CartStatus is the lifecycle state of a cart.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type Product struct {
	ID            uuid.UUID
	Name          string
	SKU           string
	OriginalPrice int64
	FinalPrice    int64
	Stock         int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Variant struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Name          string
	SKU           string
	OriginalPrice int64
	FinalPrice    int64
	Stock         int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Customer struct {
	ID       uuid.UUID
	Name     string
	MarketID *uuid.UUID
}

// PriceRule is either a price list (IsPriceList, Items carry absolute amounts)
// or a custom pricing rule (DiscountType/Value applied to ProductIDs).
type PriceRule struct {
	ID           uuid.UUID
	Name         string
	IsPriceList  bool
	DiscountType DiscountKind
	Value        decimal.Decimal
	StartDate    time.Time
	EndDate      *time.Time
	IsActive     bool
	ProductIDs   []uuid.UUID
	CustomerIDs  []uuid.UUID
	MarketIDs    []uuid.UUID
	Items        []PriceListItem
	CreatedAt    time.Time
}

type PriceListItem struct {
	RuleID    uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Amount    int64
}

type QuantityBreak struct {
	ID          uuid.UUID
	Name        string
	StartDate   time.Time
	EndDate     *time.Time
	IsActive    bool
	CustomerIDs []uuid.UUID
	MarketIDs   []uuid.UUID
	Items       []QuantityBreakItem
	Tiers       []QuantityBreakTier
	CreatedAt   time.Time
}

type QuantityBreakItem struct {
	BreakID   uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

type QuantityBreakTier struct {
	BreakID      uuid.UUID
	MinQuantity  int32
	DiscountType DiscountKind
	Value        decimal.Decimal
	Position     int32
}

type DiscountCode struct {
	ID                uuid.UUID
	Code              string
	DiscountType      DiscountKind
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount *int64
	UsageLimit        *int32
	UsageCount        int32
	StartDate         time.Time
	EndDate           *time.Time
	IsActive          bool
	ProductIDs        []uuid.UUID
	VariantIDs        []uuid.UUID
	CustomerIDs       []uuid.UUID
	CreatedAt         time.Time
}

type ShippingFeeTier struct {
	ID       uuid.UUID
	Region   string
	Method   string
	Fee      int64
	IsActive bool
}

type Address struct {
	ID           uuid.UUID
	CustomerID   uuid.UUID
	ReceiverName string
	Phone        string
	Region       string
	City         string
	PostalCode   string
	AddressLine1 string
	AddressLine2 string
	CreatedAt    time.Time
}

type Cart struct {
	ID             uuid.UUID
	CustomerID     uuid.UUID
	Status         CartStatus
	DiscountCode   *string
	AddressID      *uuid.UUID
	Subtotal       int64
	ShippingFee    int64
	DiscountAmount int64
	TotalAmount    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CartLine struct {
	ID            uuid.UUID
	CartID        uuid.UUID
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	Quantity      int32
	UnitPrice     int64
	OriginalPrice int64
	Discount      int64
	AppliedRule   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID             uuid.UUID
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
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OrderLine struct {
	ID            uuid.UUID
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

type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}
