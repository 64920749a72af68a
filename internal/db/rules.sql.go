package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listActivePriceLists = `-- name: ListActivePriceLists :many
SELECT r.id, r.name, r.discount_type, r.value, r.start_date, r.end_date, r.is_active,
       r.customer_ids, r.market_ids, r.created_at,
       i.product_id, i.variant_id, i.amount
FROM price_rules r
JOIN price_rule_items i ON i.rule_id = r.id
WHERE r.is_price_list
  AND r.is_active
  AND r.start_date <= $3
  AND (r.end_date IS NULL OR r.end_date >= $3)
  AND i.product_id = $1
  AND i.variant_id IS NOT DISTINCT FROM $2
ORDER BY r.created_at, r.id
`

// ListActivePriceLists returns active price lists holding an item for the exact
// product (VariantID nil) or exact variant. Items is limited to that item.
func (q *Queries) ListActivePriceLists(ctx context.Context, arg RuleScopeParams) ([]PriceRule, error) {
	rows, err := q.db.Query(ctx, listActivePriceLists, arg.ProductID, pgUUID(arg.VariantID), arg.At)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PriceRule
	for rows.Next() {
		var (
			i                  PriceRule
			item               PriceListItem
			customers, markets []pgtype.UUID
			itemVariant        pgtype.UUID
		)
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.DiscountType,
			&i.Value,
			&i.StartDate,
			&i.EndDate,
			&i.IsActive,
			&customers,
			&markets,
			&i.CreatedAt,
			&item.ProductID,
			&itemVariant,
			&item.Amount,
		); err != nil {
			return nil, err
		}
		i.IsPriceList = true
		i.CustomerIDs = uuidSlice(customers)
		i.MarketIDs = uuidSlice(markets)
		item.RuleID = i.ID
		item.VariantID = uuidPtr(itemVariant)
		i.Items = []PriceListItem{item}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listActiveQuantityBreaks = `-- name: ListActiveQuantityBreaks :many
SELECT DISTINCT b.id, b.name, b.start_date, b.end_date, b.is_active, b.customer_ids, b.market_ids, b.created_at
FROM quantity_breaks b
JOIN quantity_break_items i ON i.break_id = b.id
WHERE b.is_active
  AND b.start_date <= $3
  AND (b.end_date IS NULL OR b.end_date >= $3)
  AND i.product_id = $1
  AND (i.variant_id IS NULL OR i.variant_id = $2)
ORDER BY b.created_at, b.id
`

const listQuantityBreakItems = `-- name: ListQuantityBreakItems :many
SELECT break_id, product_id, variant_id
FROM quantity_break_items
WHERE break_id = ANY($1::uuid[])
`

const listQuantityBreakTiers = `-- name: ListQuantityBreakTiers :many
SELECT break_id, min_quantity, discount_type, value, position
FROM quantity_break_tiers
WHERE break_id = ANY($1::uuid[])
ORDER BY break_id, position
`

// ListActiveQuantityBreaks returns active breaks that target the product or
// the variant, with their items and tiers attached.
func (q *Queries) ListActiveQuantityBreaks(ctx context.Context, arg RuleScopeParams) ([]QuantityBreak, error) {
	rows, err := q.db.Query(ctx, listActiveQuantityBreaks, arg.ProductID, pgUUID(arg.VariantID), arg.At)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var breaks []QuantityBreak
	for rows.Next() {
		var (
			b                  QuantityBreak
			customers, markets []pgtype.UUID
		)
		if err := rows.Scan(
			&b.ID,
			&b.Name,
			&b.StartDate,
			&b.EndDate,
			&b.IsActive,
			&customers,
			&markets,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.CustomerIDs = uuidSlice(customers)
		b.MarketIDs = uuidSlice(markets)
		breaks = append(breaks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(breaks) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(breaks))
	index := make(map[uuid.UUID]int, len(breaks))
	for idx, b := range breaks {
		ids = append(ids, b.ID)
		index[b.ID] = idx
	}

	itemRows, err := q.db.Query(ctx, listQuantityBreakItems, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			it      QuantityBreakItem
			variant pgtype.UUID
		)
		if err := itemRows.Scan(&it.BreakID, &it.ProductID, &variant); err != nil {
			return nil, err
		}
		it.VariantID = uuidPtr(variant)
		idx := index[it.BreakID]
		breaks[idx].Items = append(breaks[idx].Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	tierRows, err := q.db.Query(ctx, listQuantityBreakTiers, ids)
	if err != nil {
		return nil, err
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var t QuantityBreakTier
		if err := tierRows.Scan(&t.BreakID, &t.MinQuantity, &t.DiscountType, &t.Value, &t.Position); err != nil {
			return nil, err
		}
		idx := index[t.BreakID]
		breaks[idx].Tiers = append(breaks[idx].Tiers, t)
	}
	if err := tierRows.Err(); err != nil {
		return nil, err
	}
	return breaks, nil
}

const listActiveCustomPricing = `-- name: ListActiveCustomPricing :many
SELECT id, name, discount_type, value, start_date, end_date, is_active,
       product_ids, customer_ids, market_ids, created_at
FROM price_rules
WHERE NOT is_price_list
  AND is_active
  AND start_date <= $2
  AND (end_date IS NULL OR end_date >= $2)
  AND (cardinality(product_ids) = 0 OR $1 = ANY(product_ids))
ORDER BY created_at, id
`

// ListActiveCustomPricing returns active non price-list rules whose product
// scope is empty or contains the product.
func (q *Queries) ListActiveCustomPricing(ctx context.Context, arg RuleScopeParams) ([]PriceRule, error) {
	rows, err := q.db.Query(ctx, listActiveCustomPricing, arg.ProductID, arg.At)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PriceRule
	for rows.Next() {
		var (
			i                            PriceRule
			products, customers, markets []pgtype.UUID
		)
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.DiscountType,
			&i.Value,
			&i.StartDate,
			&i.EndDate,
			&i.IsActive,
			&products,
			&customers,
			&markets,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		i.ProductIDs = uuidSlice(products)
		i.CustomerIDs = uuidSlice(customers)
		i.MarketIDs = uuidSlice(markets)
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getDiscountCodeByCode = `-- name: GetDiscountCodeByCode :one
SELECT id, code, discount_type, value, min_order_amount, max_discount_amount, usage_limit, usage_count,
       start_date, end_date, is_active, product_ids, variant_ids, customer_ids, created_at
FROM discount_codes
WHERE upper(code) = upper($1)
`

func (q *Queries) GetDiscountCodeByCode(ctx context.Context, code string) (DiscountCode, error) {
	row := q.db.QueryRow(ctx, getDiscountCodeByCode, code)
	var (
		i                             DiscountCode
		products, variants, customers []pgtype.UUID
	)
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.DiscountType,
		&i.Value,
		&i.MinOrderAmount,
		&i.MaxDiscountAmount,
		&i.UsageLimit,
		&i.UsageCount,
		&i.StartDate,
		&i.EndDate,
		&i.IsActive,
		&products,
		&variants,
		&customers,
		&i.CreatedAt,
	)
	i.ProductIDs = uuidSlice(products)
	i.VariantIDs = uuidSlice(variants)
	i.CustomerIDs = uuidSlice(customers)
	return i, err
}

const incrementDiscountUsage = `-- name: IncrementDiscountUsage :one
UPDATE discount_codes
SET usage_count = usage_count + 1
WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
RETURNING usage_count
`

// IncrementDiscountUsage returns pgx.ErrNoRows once the usage limit is exhausted.
func (q *Queries) IncrementDiscountUsage(ctx context.Context, id uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, incrementDiscountUsage, id)
	var count int32
	err := row.Scan(&count)
	return count, err
}
