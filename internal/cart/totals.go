package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

// Line is a priced cart line.
type Line struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"productId"`
	VariantID     *uuid.UUID `json:"variantId"`
	Name          string     `json:"name"`
	SKU           string     `json:"sku"`
	Quantity      int32      `json:"quantity"`
	OriginalPrice int64      `json:"originalPrice"`
	UnitPrice     int64      `json:"unitPrice"`
	Discount      int64      `json:"discount"`
	LineTotal     int64      `json:"lineTotal"`
	AppliedRule   string     `json:"appliedRule,omitempty"`
	Stock         int32      `json:"stock"`
	Selected      bool       `json:"selected"`
}

// Totals are derived from the lines, the discount code and the address. They
// are cached on the cart row but never trusted.
type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discountAmount"`
	ShippingFee    int64 `json:"shippingFee"`
	TotalAmount    int64 `json:"totalAmount"`
}

// View is a cart with freshly priced lines and totals.
type View struct {
	ID           uuid.UUID     `json:"id"`
	CustomerID   uuid.UUID     `json:"customerId"`
	Status       db.CartStatus `json:"status"`
	DiscountCode *string       `json:"discountCode"`
	AddressID    *uuid.UUID    `json:"addressId"`
	Lines        []Line        `json:"lines"`
	Totals       Totals        `json:"totals"`
}

func (v View) selected() []Line {
	out := make([]Line, 0, len(v.Lines))
	for _, l := range v.Lines {
		if l.Selected {
			out = append(out, l)
		}
	}
	return out
}

// Recompute re-resolves every line price, refreshes stale line snapshots,
// derives totals over the selected lines and stores them on the cart.
// Calling it twice without intervening changes yields the same result.
func (s *Service) Recompute(ctx context.Context, q db.Querier, c *db.Cart, opts TotalsOptions) (View, error) {
	rows, err := q.ListCartLines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		res, err := s.price(ctx, q, c.CustomerID, row.ProductID, row.VariantID, int(row.Quantity))
		if err != nil {
			return View{}, err
		}
		if snapshotStale(row, res) {
			err := q.UpdateCartLine(ctx, db.UpdateCartLineParams{
				ID:            row.ID,
				Quantity:      row.Quantity,
				UnitPrice:     res.FinalPrice,
				OriginalPrice: res.OriginalPrice,
				Discount:      res.DiscountAmount,
				AppliedRule:   res.AppliedRule.Label(),
			})
			if err != nil {
				return View{}, err
			}
		}
		lines = append(lines, Line{
			ID:            row.ID,
			ProductID:     row.ProductID,
			VariantID:     row.VariantID,
			Name:          res.Item.Name,
			SKU:           res.Item.SKU,
			Quantity:      row.Quantity,
			OriginalPrice: res.OriginalPrice,
			UnitPrice:     res.FinalPrice,
			Discount:      res.DiscountAmount,
			LineTotal:     res.FinalPrice * int64(row.Quantity),
			AppliedRule:   res.AppliedRule.Label(),
			Stock:         res.Item.Stock,
		})
	}
	if err := markSelected(lines, opts.LineIDs); err != nil {
		return View{}, err
	}

	view := View{ID: c.ID, CustomerID: c.CustomerID, Status: c.Status, DiscountCode: c.DiscountCode, AddressID: c.AddressID, Lines: lines}
	selected := view.selected()
	items := make([]pricing.Item, 0, len(selected))
	var subtotal int64
	for _, l := range selected {
		items = append(items, pricing.Item{Qty: int(l.Quantity), UnitPrice: l.UnitPrice})
		subtotal += l.LineTotal
	}
	shippingFee, err := s.Shipping.Quote(ctx, q, c.CustomerID, c.AddressID, subtotal)
	if err != nil {
		return View{}, err
	}
	var discount int64
	if opts.ApplyDiscount && c.DiscountCode != nil && len(selected) > 0 {
		discount, err = s.revalidateDiscount(ctx, q, c, selected, shippingFee)
		if err != nil {
			return View{}, err
		}
	}
	summary := pricing.Compute(items, discount, shippingFee)
	view.Totals = Totals{
		Subtotal:       summary.Subtotal,
		DiscountAmount: summary.Discount,
		ShippingFee:    summary.Shipping,
		TotalAmount:    summary.Total,
	}
	if err := q.UpdateCartTotals(ctx, db.UpdateCartTotalsParams{
		ID:             c.ID,
		Subtotal:       summary.Subtotal,
		ShippingFee:    summary.Shipping,
		DiscountAmount: summary.Discount,
		TotalAmount:    summary.Total,
	}); err != nil {
		return View{}, err
	}
	c.Subtotal = summary.Subtotal
	c.ShippingFee = summary.Shipping
	c.DiscountAmount = summary.Discount
	c.TotalAmount = summary.Total
	return view, nil
}

// revalidateDiscount evaluates the stored code from scratch. A code that no
// longer applies yields no discount but stays on the cart.
func (s *Service) revalidateDiscount(ctx context.Context, q db.Querier, c *db.Cart, selected []Line, shippingFee int64) (int64, error) {
	eval, err := s.Vouchers.Apply(ctx, q, *c.DiscountCode, &c.CustomerID, voucherItems(selected), shippingFee)
	if err == nil {
		return eval.Discount, nil
	}
	if errors.Is(err, common.ErrDiscountNotApplicable) || errors.Is(err, common.ErrNotFound) {
		s.Logger.Debug().Err(err).Str("cart_id", c.ID.String()).Str("code", *c.DiscountCode).Msg("stored discount code no longer applies")
		return 0, nil
	}
	return 0, err
}

func snapshotStale(row db.CartLine, res pricing.Result) bool {
	return row.UnitPrice != res.FinalPrice ||
		row.OriginalPrice != res.OriginalPrice ||
		row.Discount != res.DiscountAmount ||
		row.AppliedRule != res.AppliedRule.Label()
}

// markSelected flags the requested lines, or all of them when ids is empty.
func markSelected(lines []Line, ids []uuid.UUID) error {
	if len(ids) == 0 {
		for i := range lines {
			lines[i].Selected = true
		}
		return nil
	}
	index := make(map[uuid.UUID]int, len(lines))
	for i, l := range lines {
		index[l.ID] = i
	}
	for _, id := range ids {
		i, ok := index[id]
		if !ok {
			return common.Validation("unknown cart line " + id.String())
		}
		lines[i].Selected = true
	}
	return nil
}

func voucherItems(lines []Line) []voucher.Item {
	out := make([]voucher.Item, 0, len(lines))
	for _, l := range lines {
		out = append(out, voucher.Item{LineID: l.ID, ProductID: l.ProductID, VariantID: l.VariantID, Subtotal: l.LineTotal})
	}
	return out
}

var transitions = map[db.CartStatus][]db.CartStatus{
	db.CartStatusActive: {db.CartStatusConverted, db.CartStatusAbandoned},
}

// CanTransition reports whether a cart may move from one status to another.
// converted and abandoned are terminal.
func CanTransition(from, to db.CartStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves c to status to, persisting the change.
func Transition(ctx context.Context, q db.Querier, c *db.Cart, to db.CartStatus) error {
	if !CanTransition(c.Status, to) {
		return common.InvalidTransition(string(c.Status), string(to))
	}
	if err := q.UpdateCartStatus(ctx, db.UpdateCartStatusParams{ID: c.ID, Status: to}); err != nil {
		return err
	}
	c.Status = to
	return nil
}
