package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/obs"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/shipping"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

// Locker serialises work on a key across processes. lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations. Every operation runs in one
// transaction and, when Locker is set, under the customer's cart lock.
type Service struct {
	Tx       db.TxManager
	Resolver *pricing.Resolver
	Shipping *shipping.Calculator
	Vouchers *voucher.Service
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// TotalsOptions selects what ComputeTotals covers. No LineIDs means every line.
type TotalsOptions struct {
	LineIDs       []uuid.UUID
	ApplyDiscount bool
}

// AddLineInput describes a product or variant to put in the cart.
type AddLineInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

var allLinesWithDiscount = TotalsOptions{ApplyDiscount: true}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// LockKey is the Redis key guarding a customer's cart.
func LockKey(customerID uuid.UUID) string {
	return "cart:lock:" + customerID.String()
}

// WithCustomerLock runs fn under the customer's cart lock, or directly when no
// locker is configured.
func (s *Service) WithCustomerLock(ctx context.Context, customerID uuid.UUID, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, LockKey(customerID), s.lockTTL(), fn)
}

type mutation func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error)

func (s *Service) run(ctx context.Context, customerID uuid.UUID, op string, fn mutation) (view View, err error) {
	defer func() {
		if obs.CartMutationTotal != nil {
			obs.CartMutationTotal.WithLabelValues(op, obs.ResultLabel(err)).Inc()
		}
		if err != nil && !common.IsAppError(err) {
			s.Logger.Error().Err(err).Str("op", op).Str("customer_id", customerID.String()).Msg("cart operation failed")
		}
	}()
	if s.Tx == nil || s.Resolver == nil || s.Shipping == nil || s.Vouchers == nil {
		return View{}, common.Internal(errors.New("cart service not configured"))
	}
	err = s.WithCustomerLock(ctx, customerID, func(ctx context.Context) error {
		return s.Tx.WithinTx(ctx, func(q db.Querier) error {
			c, err := s.ensureCart(ctx, q, customerID)
			if err != nil {
				return err
			}
			opts, err := fn(ctx, q, &c)
			if err != nil {
				return err
			}
			view, err = s.Recompute(ctx, q, &c, opts)
			return err
		})
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

func (s *Service) ensureCart(ctx context.Context, q db.Querier, customerID uuid.UUID) (db.Cart, error) {
	c, err := q.GetActiveCartByCustomer(ctx, customerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return db.Cart{}, err
	}
	if _, err := q.GetCustomer(ctx, customerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, common.NotFound("customer")
		}
		return db.Cart{}, err
	}
	return q.CreateCart(ctx, customerID)
}

// Get is the read path: it prices the cart and persists the refreshed totals.
func (s *Service) Get(ctx context.Context, customerID uuid.UUID, opts TotalsOptions) (View, error) {
	return s.run(ctx, customerID, "get", func(context.Context, db.Querier, *db.Cart) (TotalsOptions, error) {
		return opts, nil
	})
}

// ComputeTotals is Get under the name used by checkout previews.
func (s *Service) ComputeTotals(ctx context.Context, customerID uuid.UUID, opts TotalsOptions) (View, error) {
	return s.Get(ctx, customerID, opts)
}

// AddLine inserts a line or merges into the existing line for the same
// product and variant. Any applied discount code is cleared.
func (s *Service) AddLine(ctx context.Context, customerID uuid.UUID, in AddLineInput) (View, error) {
	return s.run(ctx, customerID, "add_line", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		if in.Quantity <= 0 {
			return TotalsOptions{}, common.Validation("quantity must be positive")
		}
		existing, err := q.FindCartLine(ctx, db.FindCartLineParams{CartID: c.ID, ProductID: in.ProductID, VariantID: in.VariantID})
		merging := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return TotalsOptions{}, err
		}
		qty := in.Quantity
		if merging {
			qty += int(existing.Quantity)
		}
		res, err := s.price(ctx, q, c.CustomerID, in.ProductID, in.VariantID, qty)
		if err != nil {
			return TotalsOptions{}, err
		}
		if int(res.Item.Stock) < qty {
			return TotalsOptions{}, common.InsufficientStock(int32(qty), res.Item.Stock)
		}
		if merging {
			err = q.UpdateCartLine(ctx, db.UpdateCartLineParams{
				ID:            existing.ID,
				Quantity:      int32(qty),
				UnitPrice:     res.FinalPrice,
				OriginalPrice: res.OriginalPrice,
				Discount:      res.DiscountAmount,
				AppliedRule:   res.AppliedRule.Label(),
			})
		} else {
			_, err = q.CreateCartLine(ctx, db.CreateCartLineParams{
				CartID:        c.ID,
				ProductID:     in.ProductID,
				VariantID:     in.VariantID,
				Quantity:      int32(qty),
				UnitPrice:     res.FinalPrice,
				OriginalPrice: res.OriginalPrice,
				Discount:      res.DiscountAmount,
				AppliedRule:   res.AppliedRule.Label(),
			})
		}
		if err != nil {
			return TotalsOptions{}, err
		}
		return allLinesWithDiscount, s.setDiscountCode(ctx, q, c, nil)
	})
}

// UpdateLine sets a line's quantity. Zero deletes the line.
func (s *Service) UpdateLine(ctx context.Context, customerID, lineID uuid.UUID, qty int) (View, error) {
	return s.run(ctx, customerID, "update_line", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		if qty < 0 {
			return TotalsOptions{}, common.Validation("quantity must not be negative")
		}
		line, err := s.line(ctx, q, c.ID, lineID)
		if err != nil {
			return TotalsOptions{}, err
		}
		if qty == 0 {
			return allLinesWithDiscount, s.deleteLine(ctx, q, c, line.ID)
		}
		res, err := s.price(ctx, q, c.CustomerID, line.ProductID, line.VariantID, qty)
		if err != nil {
			return TotalsOptions{}, err
		}
		if int(res.Item.Stock) < qty {
			return TotalsOptions{}, common.InsufficientStock(int32(qty), res.Item.Stock)
		}
		return allLinesWithDiscount, q.UpdateCartLine(ctx, db.UpdateCartLineParams{
			ID:            line.ID,
			Quantity:      int32(qty),
			UnitPrice:     res.FinalPrice,
			OriginalPrice: res.OriginalPrice,
			Discount:      res.DiscountAmount,
			AppliedRule:   res.AppliedRule.Label(),
		})
	})
}

// RemoveLine deletes a line.
func (s *Service) RemoveLine(ctx context.Context, customerID, lineID uuid.UUID) (View, error) {
	return s.run(ctx, customerID, "remove_line", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		line, err := s.line(ctx, q, c.ID, lineID)
		if err != nil {
			return TotalsOptions{}, err
		}
		return allLinesWithDiscount, s.deleteLine(ctx, q, c, line.ID)
	})
}

// Clear deletes every line and the applied discount code.
func (s *Service) Clear(ctx context.Context, customerID uuid.UUID) (View, error) {
	return s.run(ctx, customerID, "clear", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		if err := q.DeleteCartLines(ctx, c.ID); err != nil {
			return TotalsOptions{}, err
		}
		return allLinesWithDiscount, s.setDiscountCode(ctx, q, c, nil)
	})
}

// SetShippingAddress points the cart at one of the customer's addresses.
func (s *Service) SetShippingAddress(ctx context.Context, customerID, addressID uuid.UUID) (View, error) {
	return s.run(ctx, customerID, "set_address", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		addr, err := s.Shipping.Address(ctx, q, c.CustomerID, addressID)
		if err != nil {
			return TotalsOptions{}, err
		}
		if err := q.UpdateCartAddress(ctx, db.UpdateCartAddressParams{ID: c.ID, AddressID: &addr.ID}); err != nil {
			return TotalsOptions{}, err
		}
		c.AddressID = &addr.ID
		return allLinesWithDiscount, nil
	})
}

// ApplyDiscountCode validates code against the selected lines and stores it.
// The returned totals cover the selected lines only.
func (s *Service) ApplyDiscountCode(ctx context.Context, customerID uuid.UUID, code string, lineIDs []uuid.UUID) (View, error) {
	return s.run(ctx, customerID, "apply_discount", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		if len(lineIDs) == 0 {
			return TotalsOptions{}, common.Validation("select at least one cart line")
		}
		opts := TotalsOptions{LineIDs: lineIDs}
		preview, err := s.Recompute(ctx, q, c, opts)
		if err != nil {
			return TotalsOptions{}, err
		}
		eval, err := s.Vouchers.Apply(ctx, q, code, &c.CustomerID, voucherItems(preview.selected()), preview.Totals.ShippingFee)
		if err != nil {
			return TotalsOptions{}, err
		}
		opts.ApplyDiscount = true
		return opts, s.setDiscountCode(ctx, q, c, &eval.Code)
	})
}

// RemoveDiscountCode clears the applied code.
func (s *Service) RemoveDiscountCode(ctx context.Context, customerID uuid.UUID) (View, error) {
	return s.run(ctx, customerID, "remove_discount", func(ctx context.Context, q db.Querier, c *db.Cart) (TotalsOptions, error) {
		return allLinesWithDiscount, s.setDiscountCode(ctx, q, c, nil)
	})
}

// Abandon moves the active cart to abandoned. The next access creates a new cart.
func (s *Service) Abandon(ctx context.Context, customerID uuid.UUID) (err error) {
	defer func() {
		if obs.CartMutationTotal != nil {
			obs.CartMutationTotal.WithLabelValues("abandon", obs.ResultLabel(err)).Inc()
		}
	}()
	if s.Tx == nil {
		return common.Internal(errors.New("cart service not configured"))
	}
	return s.WithCustomerLock(ctx, customerID, func(ctx context.Context) error {
		return s.Tx.WithinTx(ctx, func(q db.Querier) error {
			c, err := q.GetActiveCartByCustomer(ctx, customerID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return common.NotFound("cart")
				}
				return err
			}
			return Transition(ctx, q, &c, db.CartStatusAbandoned)
		})
	})
}

func (s *Service) price(ctx context.Context, q db.Querier, customerID, productID uuid.UUID, variantID *uuid.UUID, qty int) (pricing.Result, error) {
	return s.Resolver.ResolveFrom(ctx, q, pricing.Request{
		CustomerID: &customerID,
		ProductID:  productID,
		VariantID:  variantID,
		Quantity:   qty,
	})
}

func (s *Service) line(ctx context.Context, q db.Querier, cartID, lineID uuid.UUID) (db.CartLine, error) {
	line, err := q.GetCartLine(ctx, db.GetCartLineParams{ID: lineID, CartID: cartID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.CartLine{}, common.NotFound("cart line")
		}
		return db.CartLine{}, err
	}
	return line, nil
}

// deleteLine removes a line and clears the discount code once the cart is empty.
func (s *Service) deleteLine(ctx context.Context, q db.Querier, c *db.Cart, lineID uuid.UUID) error {
	if err := q.DeleteCartLine(ctx, db.DeleteCartLineParams{ID: lineID, CartID: c.ID}); err != nil {
		return err
	}
	remaining, err := q.ListCartLines(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return s.setDiscountCode(ctx, q, c, nil)
	}
	return nil
}

func (s *Service) setDiscountCode(ctx context.Context, q db.Querier, c *db.Cart, code *string) error {
	if c.DiscountCode == nil && code == nil {
		return nil
	}
	if err := q.UpdateCartDiscountCode(ctx, db.UpdateCartDiscountCodeParams{ID: c.ID, DiscountCode: code}); err != nil {
		return err
	}
	c.DiscountCode = code
	return nil
}
