package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/obs"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/shipping"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

// Service turns carts into orders and drives the order lifecycle.
type Service struct {
	Tx       db.TxManager
	Carts    *cart.Service
	Resolver *pricing.Resolver
	Shipping *shipping.Calculator
	Vouchers *voucher.Service
	Events   *events.Bus
	Currency string
	Logger   zerolog.Logger
}

// CheckoutInput selects what to order. Empty LineIDs orders the whole cart;
// a nil DiscountCode or AddressID falls back to the cart's.
type CheckoutInput struct {
	LineIDs        []uuid.UUID
	DiscountCode   *string
	AddressID      *uuid.UUID
	IdempotencyKey *string
}

type pricedLine struct {
	row    db.CartLine
	result pricing.Result
}

func (s *Service) configured() error {
	if s == nil || s.Tx == nil || s.Carts == nil || s.Resolver == nil || s.Shipping == nil || s.Vouchers == nil {
		return common.Internal(errors.New("order service not configured"))
	}
	return nil
}

// Checkout builds an order from the customer's cart in one transaction under
// the cart lock. Prices are resolved fresh, stock is decremented and the
// prices are frozen onto the order lines. A repeated idempotency key returns
// the order created the first time.
func (s *Service) Checkout(ctx context.Context, customerID uuid.UUID, in CheckoutInput) (view View, err error) {
	start := time.Now()
	defer func() {
		if obs.CheckoutTotal != nil {
			obs.CheckoutTotal.WithLabelValues(obs.ResultLabel(err)).Inc()
		}
		if obs.CheckoutLatency != nil {
			obs.CheckoutLatency.Observe(float64(time.Since(start).Milliseconds()))
		}
		if err != nil && !common.IsAppError(err) {
			s.Logger.Error().Err(err).Str("customer_id", customerID.String()).Msg("checkout failed")
		}
	}()
	if err := s.configured(); err != nil {
		return View{}, err
	}
	key := trimmed(in.IdempotencyKey)

	var created bool
	err = s.Carts.WithCustomerLock(ctx, customerID, func(ctx context.Context) error {
		return s.Tx.WithinTx(ctx, func(q db.Querier) error {
			if key != nil {
				existing, err := q.GetOrderByIdempotencyKey(ctx, db.GetOrderByIdempotencyKeyParams{CustomerID: customerID, IdempotencyKey: *key})
				if err == nil {
					view, err = s.load(ctx, q, existing)
					return err
				}
				if !errors.Is(err, pgx.ErrNoRows) {
					return err
				}
			}
			view, err = s.build(ctx, q, customerID, in, key)
			created = err == nil
			return err
		})
	})
	if err != nil {
		return View{}, err
	}
	if created {
		s.emit(ctx, events.TopicOrderCreated, view.ID, map[string]any{
			"orderId":     view.ID,
			"customerId":  view.CustomerID,
			"status":      view.Status,
			"totalAmount": view.TotalAmount,
			"currency":    view.Currency,
			"lines":       len(view.Lines),
		})
	}
	return view, nil
}

func (s *Service) build(ctx context.Context, q db.Querier, customerID uuid.UUID, in CheckoutInput, key *string) (View, error) {
	c, err := q.GetActiveCartByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, common.NotFound("cart")
		}
		return View{}, err
	}
	rows, err := q.ListCartLines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	selected, err := selectLines(rows, in.LineIDs)
	if err != nil {
		return View{}, err
	}

	addressID := in.AddressID
	if addressID == nil {
		addressID = c.AddressID
	}
	if addressID == nil {
		return View{}, common.Validation("shipping address is required")
	}
	addr, err := s.Shipping.Address(ctx, q, customerID, *addressID)
	if err != nil {
		return View{}, err
	}

	priced := make([]pricedLine, 0, len(selected))
	items := make([]pricing.Item, 0, len(selected))
	codeItems := make([]voucher.Item, 0, len(selected))
	var subtotal int64
	for _, row := range selected {
		res, err := s.Resolver.ResolveFrom(ctx, q, pricing.Request{
			CustomerID: &customerID,
			ProductID:  row.ProductID,
			VariantID:  row.VariantID,
			Quantity:   int(row.Quantity),
		})
		if err != nil {
			return View{}, err
		}
		if err := reserveStock(ctx, q, row, res.Item); err != nil {
			return View{}, err
		}
		lineTotal := res.FinalPrice * int64(row.Quantity)
		subtotal += lineTotal
		priced = append(priced, pricedLine{row: row, result: res})
		items = append(items, pricing.Item{Qty: int(row.Quantity), UnitPrice: res.FinalPrice})
		codeItems = append(codeItems, voucher.Item{LineID: row.ID, ProductID: row.ProductID, VariantID: row.VariantID, Subtotal: lineTotal})
	}

	shippingFee, err := s.Shipping.Quote(ctx, q, customerID, &addr.ID, subtotal)
	if err != nil {
		return View{}, err
	}

	code := trimmed(in.DiscountCode)
	if code == nil {
		code = trimmed(c.DiscountCode)
	}
	var eval voucher.Evaluation
	if code != nil {
		eval, err = s.Vouchers.Apply(ctx, q, *code, &customerID, codeItems, shippingFee)
		if err != nil {
			return View{}, err
		}
		if err := s.Vouchers.Redeem(ctx, q, eval.Rule); err != nil {
			return View{}, err
		}
		code = &eval.Code
	}

	summary := pricing.Compute(items, eval.Discount, shippingFee)
	if summary.Discount != eval.Discount {
		s.Logger.Warn().Int64("discount", eval.Discount).Int64("applied", summary.Discount).Str("cart_id", c.ID.String()).Msg("order discount clamped")
	}
	o, err := q.CreateOrder(ctx, db.CreateOrderParams{
		CustomerID:     customerID,
		CartID:         &c.ID,
		Status:         db.OrderStatusPending,
		AddressID:      addr.ID,
		DiscountCode:   code,
		Subtotal:       summary.Subtotal,
		DiscountAmount: summary.Discount,
		ShippingFee:    summary.Shipping,
		TotalAmount:    summary.Total,
		Currency:       s.Currency,
		IdempotencyKey: key,
	})
	if err != nil {
		return View{}, err
	}

	lines := make([]db.OrderLine, 0, len(priced))
	for _, p := range priced {
		gross := p.result.FinalPrice * int64(p.row.Quantity)
		share := eval.Allocations[p.row.ID]
		line, err := q.CreateOrderLine(ctx, db.CreateOrderLineParams{
			OrderID:       o.ID,
			ProductID:     p.row.ProductID,
			VariantID:     p.row.VariantID,
			ProductName:   p.result.Item.Name,
			SKU:           p.result.Item.SKU,
			Quantity:      p.row.Quantity,
			OriginalPrice: p.result.OriginalPrice,
			UnitPrice:     p.result.FinalPrice,
			Discount:      share,
			LineTotal:     gross - share,
			AppliedRule:   p.result.AppliedRule.Label(),
		})
		if err != nil {
			return View{}, err
		}
		lines = append(lines, line)
		if err := q.DeleteCartLine(ctx, db.DeleteCartLineParams{ID: p.row.ID, CartID: c.ID}); err != nil {
			return View{}, err
		}
	}

	if err := s.settleCart(ctx, q, &c, len(rows) == len(selected)); err != nil {
		return View{}, err
	}
	return newView(o, lines), nil
}

// settleCart converts an emptied cart, or reprices what is left of it.
func (s *Service) settleCart(ctx context.Context, q db.Querier, c *db.Cart, emptied bool) error {
	if emptied {
		return cart.Transition(ctx, q, c, db.CartStatusConverted)
	}
	_, err := s.Carts.Recompute(ctx, q, c, cart.TotalsOptions{ApplyDiscount: true})
	return err
}

// reserveStock decrements the stock the line draws from. The decrement is
// guarded in the store so concurrent checkouts cannot oversell.
func reserveStock(ctx context.Context, q db.Querier, row db.CartLine, item pricing.Priceable) error {
	if item.Stock < row.Quantity {
		return common.InsufficientStock(row.Quantity, item.Stock)
	}
	arg := db.AdjustStockParams{Delta: -row.Quantity}
	var err error
	if row.VariantID != nil {
		arg.ID = *row.VariantID
		_, err = q.AdjustVariantStock(ctx, arg)
	} else {
		arg.ID = row.ProductID
		_, err = q.AdjustProductStock(ctx, arg)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.InsufficientStock(row.Quantity, item.Stock)
	}
	return err
}

func restock(ctx context.Context, q db.Querier, lines []db.OrderLine) error {
	for _, l := range lines {
		arg := db.AdjustStockParams{Delta: l.Quantity}
		var err error
		if l.VariantID != nil {
			arg.ID = *l.VariantID
			_, err = q.AdjustVariantStock(ctx, arg)
		} else {
			arg.ID = l.ProductID
			_, err = q.AdjustProductStock(ctx, arg)
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return nil
}

func selectLines(rows []db.CartLine, ids []uuid.UUID) ([]db.CartLine, error) {
	if len(rows) == 0 {
		return nil, common.Validation("cart is empty")
	}
	if len(ids) == 0 {
		return rows, nil
	}
	index := make(map[uuid.UUID]db.CartLine, len(rows))
	for _, r := range rows {
		index[r.ID] = r
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]db.CartLine, 0, len(ids))
	for _, id := range ids {
		row, ok := index[id]
		if !ok {
			return nil, common.Validation("unknown cart line " + id.String())
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, row)
	}
	return out, nil
}

// Transition moves an order to status to. Cancelling or refunding returns
// every line's quantity to stock in the same transaction.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, to db.OrderStatus) (View, error) {
	return s.transition(ctx, nil, orderID, to)
}

// Cancel cancels one of the customer's own orders.
func (s *Service) Cancel(ctx context.Context, customerID, orderID uuid.UUID) (View, error) {
	return s.transition(ctx, &customerID, orderID, db.OrderStatusCancelled)
}

func (s *Service) transition(ctx context.Context, owner *uuid.UUID, orderID uuid.UUID, to db.OrderStatus) (view View, err error) {
	from := "unknown"
	defer func() {
		if obs.OrderTransitionTotal != nil {
			obs.OrderTransitionTotal.WithLabelValues(from, string(to), obs.ResultLabel(err)).Inc()
		}
	}()
	if s == nil || s.Tx == nil {
		return View{}, common.Internal(errors.New("order service not configured"))
	}
	err = s.Tx.WithinTx(ctx, func(q db.Querier) error {
		o, err := s.owned(ctx, q, owner, orderID)
		if err != nil {
			return err
		}
		from = string(o.Status)
		if !CanTransition(o.Status, to) {
			return common.InvalidTransition(from, string(to))
		}
		if err := q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{ID: o.ID, Status: to}); err != nil {
			return err
		}
		lines, err := q.ListOrderLines(ctx, o.ID)
		if err != nil {
			return err
		}
		if restocks(to) {
			if err := restock(ctx, q, lines); err != nil {
				return err
			}
		}
		o.Status = to
		view = newView(o, lines)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.emit(ctx, events.TopicOrderStatusChanged, view.ID, map[string]any{
		"orderId":    view.ID,
		"customerId": view.CustomerID,
		"from":       from,
		"to":         view.Status,
	})
	return view, nil
}

// Get returns one of the customer's orders with its lines.
func (s *Service) Get(ctx context.Context, customerID, orderID uuid.UUID) (View, error) {
	if s == nil || s.Tx == nil {
		return View{}, common.Internal(errors.New("order service not configured"))
	}
	var view View
	err := s.Tx.WithinTx(ctx, func(q db.Querier) error {
		o, err := s.owned(ctx, q, &customerID, orderID)
		if err != nil {
			return err
		}
		view, err = s.load(ctx, q, o)
		return err
	})
	return view, err
}

// List returns a page of the customer's orders, newest first, without lines,
// along with the total number of orders.
func (s *Service) List(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]View, int, error) {
	if s == nil || s.Tx == nil {
		return nil, 0, common.Internal(errors.New("order service not configured"))
	}
	var (
		views []View
		total int
	)
	err := s.Tx.WithinTx(ctx, func(q db.Querier) error {
		orders, err := q.ListOrdersByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		total = len(orders)
		start, end := common.PageBounds(page, perPage, total)
		views = make([]View, 0, end-start)
		for _, o := range orders[start:end] {
			views = append(views, newView(o, nil))
		}
		return nil
	})
	return views, total, err
}

// owned loads an order, hiding orders of other customers when owner is set.
func (s *Service) owned(ctx context.Context, q db.Querier, owner *uuid.UUID, orderID uuid.UUID) (db.Order, error) {
	o, err := q.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Order{}, common.NotFound("order")
		}
		return db.Order{}, err
	}
	if owner != nil && o.CustomerID != *owner {
		return db.Order{}, common.NotFound("order")
	}
	return o, nil
}

func (s *Service) load(ctx context.Context, q db.Querier, o db.Order) (View, error) {
	lines, err := q.ListOrderLines(ctx, o.ID)
	if err != nil {
		return View{}, err
	}
	return newView(o, lines), nil
}

// emit publishes after commit. The order is already durable, so failures are
// only logged.
func (s *Service) emit(ctx context.Context, topic string, orderID uuid.UUID, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("order_id", orderID.String()).Msg("order event not delivered")
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
