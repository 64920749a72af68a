package pricing

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/db"
)

func activeAt(isActive bool, start time.Time, end *time.Time, at time.Time) bool {
	if !isActive || start.After(at) {
		return false
	}
	return end == nil || !end.Before(at)
}

// inScope applies "empty list means everyone" semantics.
func inScope(scope []uuid.UUID, id *uuid.UUID) bool {
	if len(scope) == 0 {
		return true
	}
	if id == nil {
		return false
	}
	return slices.Contains(scope, *id)
}

func (a Audience) admits(customers, markets []uuid.UUID) bool {
	return inScope(customers, a.CustomerID) && inScope(markets, a.MarketID)
}

func sameVariant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func scopeParams(in Input) db.RuleScopeParams {
	return db.RuleScopeParams{ProductID: in.Item.ProductID, VariantID: in.Item.VariantID, At: in.At}
}

// PriceListStrategy overrides the price with an absolute per-item amount.
// When several price lists cover the item the lowest amount wins.
type PriceListStrategy struct{}

func (PriceListStrategy) Tier() Tier { return TierPriceList }

func (PriceListStrategy) Evaluate(ctx context.Context, src Source, in Input) (Result, bool, error) {
	rules, err := src.ListActivePriceLists(ctx, scopeParams(in))
	if err != nil {
		return Result{}, false, err
	}
	var (
		best    *db.PriceRule
		amount  Money
		matched bool
	)
	for i := range rules {
		rule := &rules[i]
		if !rule.IsPriceList || !activeAt(rule.IsActive, rule.StartDate, rule.EndDate, in.At) {
			continue
		}
		if !in.Audience.admits(rule.CustomerIDs, rule.MarketIDs) {
			continue
		}
		for _, item := range rule.Items {
			if item.ProductID != in.Item.ProductID || !sameVariant(item.VariantID, in.Item.VariantID) {
				continue
			}
			if !matched || item.Amount < amount {
				best, amount, matched = rule, item.Amount, true
			}
		}
	}
	if !matched {
		return Result{}, false, nil
	}
	res := Result{
		OriginalPrice: in.Item.OriginalPrice,
		FinalPrice:    amount,
		AppliedRule: &AppliedRule{
			Tier:   TierPriceList,
			RuleID: best.ID,
			Name:   best.Name,
		},
	}
	if res.FinalPrice < 0 {
		res.FinalPrice = 0
		res.clamped = true
	}
	if d := res.OriginalPrice - res.FinalPrice; d > 0 {
		res.DiscountAmount = d
	}
	return res, true, nil
}

// QuantityBreakStrategy applies the tier with the largest minimum quantity not
// above the requested quantity. Discounts are taken off the original price.
// Across several matching breaks the largest discount wins.
type QuantityBreakStrategy struct{}

func (QuantityBreakStrategy) Tier() Tier { return TierQuantityBreak }

func (QuantityBreakStrategy) Evaluate(ctx context.Context, src Source, in Input) (Result, bool, error) {
	breaks, err := src.ListActiveQuantityBreaks(ctx, scopeParams(in))
	if err != nil {
		return Result{}, false, err
	}
	var (
		best    Result
		matched bool
	)
	for _, qb := range breaks {
		if !activeAt(qb.IsActive, qb.StartDate, qb.EndDate, in.At) {
			continue
		}
		if !in.Audience.admits(qb.CustomerIDs, qb.MarketIDs) || !breakCovers(qb, in.Item) {
			continue
		}
		tier, ok := SelectTier(qb.Tiers, in.Quantity)
		if !ok {
			continue
		}
		final, discount, anomalous := ApplyDiscount(in.Item.OriginalPrice, tier.DiscountType, tier.Value)
		if matched && discount <= best.DiscountAmount {
			continue
		}
		best = Result{
			OriginalPrice:  in.Item.OriginalPrice,
			FinalPrice:     final,
			DiscountAmount: discount,
			AppliedRule: &AppliedRule{
				Tier:         TierQuantityBreak,
				RuleID:       qb.ID,
				Name:         qb.Name,
				DiscountType: tier.DiscountType,
				Value:        tier.Value,
				MinQuantity:  tier.MinQuantity,
			},
			clamped: anomalous,
		}
		matched = true
	}
	return best, matched, nil
}

// breakCovers reports whether qb targets the item. A product-level entry
// covers the product and all of its variants; a variant entry only that variant.
func breakCovers(qb db.QuantityBreak, item Priceable) bool {
	for _, entry := range qb.Items {
		if entry.ProductID != item.ProductID {
			continue
		}
		if entry.VariantID == nil || sameVariant(entry.VariantID, item.VariantID) {
			return true
		}
	}
	return false
}

// SelectTier returns the tier with the largest MinQuantity <= quantity. Tiers
// sharing a threshold resolve to the one listed first.
func SelectTier(tiers []db.QuantityBreakTier, quantity int) (db.QuantityBreakTier, bool) {
	sorted := slices.Clone(tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinQuantity > sorted[j].MinQuantity })
	for _, t := range sorted {
		if int(t.MinQuantity) <= quantity {
			return t, true
		}
	}
	return db.QuantityBreakTier{}, false
}

// CustomPricingStrategy applies the non price-list rule yielding the largest
// discount. It only prices bare products.
type CustomPricingStrategy struct{}

func (CustomPricingStrategy) Tier() Tier { return TierCustomPricing }

func (CustomPricingStrategy) Evaluate(ctx context.Context, src Source, in Input) (Result, bool, error) {
	if in.Item.VariantID != nil {
		return Result{}, false, nil
	}
	rules, err := src.ListActiveCustomPricing(ctx, scopeParams(in))
	if err != nil {
		return Result{}, false, err
	}
	var (
		best    Result
		matched bool
	)
	for _, rule := range rules {
		if rule.IsPriceList || !activeAt(rule.IsActive, rule.StartDate, rule.EndDate, in.At) {
			continue
		}
		productID := in.Item.ProductID
		if !inScope(rule.ProductIDs, &productID) || !in.Audience.admits(rule.CustomerIDs, rule.MarketIDs) {
			continue
		}
		final, discount, anomalous := ApplyDiscount(in.Item.OriginalPrice, rule.DiscountType, rule.Value)
		if matched && discount <= best.DiscountAmount {
			continue
		}
		best = Result{
			OriginalPrice:  in.Item.OriginalPrice,
			FinalPrice:     final,
			DiscountAmount: discount,
			AppliedRule: &AppliedRule{
				Tier:         TierCustomPricing,
				RuleID:       rule.ID,
				Name:         rule.Name,
				DiscountType: rule.DiscountType,
				Value:        rule.Value,
			},
			clamped: anomalous,
		}
		matched = true
	}
	return best, matched, nil
}
