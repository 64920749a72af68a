package voucher

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/pricing"
)

var (
	// ErrNotEligible is returned when no selected line falls inside the code's scope.
	ErrNotEligible = errors.New("discount code not eligible for selected items")
	// ErrUsageLimitReached indicates the code has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
	// ErrCustomerNotEligible indicates the code is restricted to other customers.
	ErrCustomerNotEligible = errors.New("discount code not available for this customer")
	// ErrVoucherInactive is returned for a disabled code or one used before its start date.
	ErrVoucherInactive = errors.New("discount code not active")
	// ErrVoucherExpired is returned when the code has already expired.
	ErrVoucherExpired = errors.New("discount code expired")
	// ErrMinimumSpendUnmet indicates the selected subtotal did not meet the code requirement.
	ErrMinimumSpendUnmet = errors.New("discount code minimum order amount not met")
)

// Rule captures the runtime constraints of a discount code.
type Rule struct {
	ID                uuid.UUID
	Code              string
	Kind              db.DiscountKind
	Value             decimal.Decimal
	MinOrderAmount    int64
	MaxDiscountAmount *int64
	UsageLimit        *int32
	UsedCount         int32
	Active            bool
	ValidFrom         time.Time
	ValidTo           *time.Time
	ProductIDs        []uuid.UUID
	VariantIDs        []uuid.UUID
	CustomerIDs       []uuid.UUID
}

// Item represents a line considered for discount calculation.
type Item struct {
	LineID    uuid.UUID
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Subtotal  int64
}

// Validate ensures the rule can be applied at the provided instant, for the
// given customer and selected subtotal.
func (r Rule) Validate(now time.Time, customerID *uuid.UUID, subtotal int64) error {
	if !r.Active || now.Before(r.ValidFrom) {
		return ErrVoucherInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrVoucherExpired
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if len(r.CustomerIDs) > 0 && (customerID == nil || !containsUUID(r.CustomerIDs, *customerID)) {
		return ErrCustomerNotEligible
	}
	if subtotal < r.MinOrderAmount {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// Scoped reports whether the rule is limited to specific products or variants.
func (r Rule) Scoped() bool {
	return len(r.ProductIDs) > 0 || len(r.VariantIDs) > 0
}

// Matches reports whether a line falls inside the rule's product/variant scope.
func (r Rule) Matches(it Item) bool {
	if !r.Scoped() {
		return true
	}
	if containsUUID(r.ProductIDs, it.ProductID) {
		return true
	}
	return it.VariantID != nil && containsUUID(r.VariantIDs, *it.VariantID)
}

// EligibleSubtotal calculates the portion of the selected subtotal affected by the rule.
func EligibleSubtotal(items []Item, r Rule) int64 {
	var total int64
	for _, it := range items {
		if it.Subtotal <= 0 {
			continue
		}
		if r.Matches(it) {
			total += it.Subtotal
		}
	}
	return total
}

// Compute determines the discount amount based on the rule, the eligible
// subtotal and the shipping fee a free shipping code refunds.
func Compute(eligible, shipping int64, r Rule) int64 {
	if eligible <= 0 {
		return 0
	}
	var discount int64
	switch r.Kind {
	case db.DiscountKindFreeShipping:
		discount = shipping
	default:
		_, discount, _ = pricing.ApplyDiscount(eligible, r.Kind, r.Value)
	}
	if r.MaxDiscountAmount != nil && *r.MaxDiscountAmount >= 0 && discount > *r.MaxDiscountAmount {
		discount = *r.MaxDiscountAmount
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// Allocate splits discount across the eligible items by their share of the
// eligible subtotal. The rounding remainder goes to the last eligible item so
// the allocations always sum to discount.
func Allocate(items []Item, r Rule, discount int64) map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(items))
	if discount <= 0 {
		return out
	}
	eligible := EligibleSubtotal(items, r)
	if eligible <= 0 {
		return out
	}
	last := -1
	for i, it := range items {
		if it.Subtotal > 0 && r.Matches(it) {
			last = i
		}
	}
	var allocated int64
	for i, it := range items {
		if it.Subtotal <= 0 || !r.Matches(it) {
			continue
		}
		if i == last {
			out[it.LineID] += discount - allocated
			break
		}
		share := decimal.NewFromInt(discount).
			Mul(decimal.NewFromInt(it.Subtotal)).
			Div(decimal.NewFromInt(eligible)).
			Floor().IntPart()
		out[it.LineID] += share
		allocated += share
	}
	return out
}

// Evaluation is the outcome of applying a rule to a set of items.
type Evaluation struct {
	Rule        Rule
	Code        string
	Discount    int64
	Eligible    int64
	Allocations map[uuid.UUID]int64
}

// Evaluate validates r against the selection and computes the discount and its
// per-line allocation. The minimum order amount is checked against the whole
// selected subtotal, scope against individual items. Free shipping discounts
// the shipping fee and is not allocated to lines.
func Evaluate(now time.Time, customerID *uuid.UUID, items []Item, shipping int64, r Rule) (Evaluation, error) {
	var subtotal int64
	for _, it := range items {
		if it.Subtotal > 0 {
			subtotal += it.Subtotal
		}
	}
	if err := r.Validate(now, customerID, subtotal); err != nil {
		return Evaluation{}, err
	}
	eligible := EligibleSubtotal(items, r)
	if eligible <= 0 {
		return Evaluation{}, ErrNotEligible
	}
	discount := Compute(eligible, shipping, r)
	allocations := map[uuid.UUID]int64{}
	if r.Kind != db.DiscountKindFreeShipping {
		allocations = Allocate(items, r, discount)
	}
	return Evaluation{
		Rule:        r,
		Code:        r.Code,
		Discount:    discount,
		Eligible:    eligible,
		Allocations: allocations,
	}, nil
}

// RuleFromModel converts the stored code into a Rule used for evaluation.
func RuleFromModel(v db.DiscountCode) Rule {
	return Rule{
		ID:                v.ID,
		Code:              v.Code,
		Kind:              v.DiscountType,
		Value:             v.Value,
		MinOrderAmount:    v.MinOrderAmount,
		MaxDiscountAmount: v.MaxDiscountAmount,
		UsageLimit:        v.UsageLimit,
		UsedCount:         v.UsageCount,
		Active:            v.IsActive,
		ValidFrom:         v.StartDate,
		ValidTo:           v.EndDate,
		ProductIDs:        v.ProductIDs,
		VariantIDs:        v.VariantIDs,
		CustomerIDs:       v.CustomerIDs,
	}
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
