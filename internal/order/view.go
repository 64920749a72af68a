package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/db"
)

// Line is an immutable order line as returned to clients.
type Line struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"productId"`
	VariantID     *uuid.UUID `json:"variantId"`
	ProductName   string     `json:"productName"`
	SKU           string     `json:"sku"`
	Quantity      int32      `json:"quantity"`
	OriginalPrice int64      `json:"originalPrice"`
	UnitPrice     int64      `json:"unitPrice"`
	Discount      int64      `json:"discount"`
	LineTotal     int64      `json:"lineTotal"`
	AppliedRule   string     `json:"appliedRule,omitempty"`
}

// View is an order with its lines.
type View struct {
	ID             uuid.UUID      `json:"id"`
	CustomerID     uuid.UUID      `json:"customerId"`
	CartID         *uuid.UUID     `json:"cartId"`
	Status         db.OrderStatus `json:"status"`
	AddressID      uuid.UUID      `json:"addressId"`
	DiscountCode   *string        `json:"discountCode"`
	Subtotal       int64          `json:"subtotal"`
	DiscountAmount int64          `json:"discountAmount"`
	ShippingFee    int64          `json:"shippingFee"`
	TotalAmount    int64          `json:"totalAmount"`
	Currency       string         `json:"currency"`
	CreatedAt      time.Time      `json:"createdAt"`
	Lines          []Line         `json:"lines,omitempty"`
}

func newView(o db.Order, lines []db.OrderLine) View {
	v := View{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		CartID:         o.CartID,
		Status:         o.Status,
		AddressID:      o.AddressID,
		DiscountCode:   o.DiscountCode,
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		ShippingFee:    o.ShippingFee,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		CreatedAt:      o.CreatedAt,
	}
	if len(lines) > 0 {
		v.Lines = make([]Line, 0, len(lines))
	}
	for _, l := range lines {
		v.Lines = append(v.Lines, Line{
			ID:            l.ID,
			ProductID:     l.ProductID,
			VariantID:     l.VariantID,
			ProductName:   l.ProductName,
			SKU:           l.SKU,
			Quantity:      l.Quantity,
			OriginalPrice: l.OriginalPrice,
			UnitPrice:     l.UnitPrice,
			Discount:      l.Discount,
			LineTotal:     l.LineTotal,
			AppliedRule:   l.AppliedRule,
		})
	}
	return v
}
