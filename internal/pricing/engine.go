package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-commerce/internal/db"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Discount Money
	Shipping Money
	Total    Money
}

// Compute calculates totals given the provided inputs. The discount is capped
// at subtotal plus shipping so a free shipping code never turns into credit,
// and the total never drops below zero.
func Compute(items []Item, discount Money, shipping Money) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	if shipping < 0 {
		shipping = 0
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal+shipping {
		discount = subtotal + shipping
	}
	total := subtotal - discount + shipping
	if total < 0 {
		total = 0
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
	}
}

var hundred = decimal.NewFromInt(100)

// ApplyDiscount reduces original by a percentage or fixed value and returns the
// final price and the discount actually granted. The final price is floored at
// zero. anomalous reports a clamp no well-formed rule should trigger: a
// percentage above 100 or a negative value.
func ApplyDiscount(original Money, kind db.DiscountKind, value decimal.Decimal) (final, discount Money, anomalous bool) {
	if original <= 0 {
		return 0, 0, original < 0
	}
	if value.IsNegative() {
		return original, 0, true
	}
	switch kind {
	case db.DiscountKindPercentage:
		discount = decimal.NewFromInt(original).Mul(value).Div(hundred).Round(0).IntPart()
		if value.GreaterThan(hundred) {
			anomalous = true
		}
	case db.DiscountKindFixed:
		discount = value.Round(0).IntPart()
	default:
		return original, 0, false
	}
	final = original - discount
	if final < 0 {
		final = 0
		discount = original
	}
	return final, discount, anomalous
}
