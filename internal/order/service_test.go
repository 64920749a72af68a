package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/db/dbtest"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/order"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/shipping"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type captureNotifier struct {
	events []db.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, ev db.DomainEvent) error {
	c.events = append(c.events, ev)
	return nil
}

type fixture struct {
	store    *dbtest.Store
	carts    *cart.Service
	svc      *order.Service
	notifier *captureNotifier
	customer uuid.UUID
	address  db.Address
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := dbtest.New()
	store.Now = func() time.Time { return now }
	resolver := pricing.NewResolver(store, zerolog.Nop())
	resolver.Now = func() time.Time { return now }
	vouchers := voucher.NewService(zerolog.Nop())
	vouchers.Now = func() time.Time { return now }
	calc := shipping.NewCalculator(shipping.Config{FreeShippingThreshold: 500_000, DefaultFee: 10_000}, nil, zerolog.Nop())
	carts := &cart.Service{Tx: store, Resolver: resolver, Shipping: calc, Vouchers: vouchers, Logger: zerolog.Nop()}
	notifier := &captureNotifier{}
	svc := &order.Service{
		Tx:       store,
		Carts:    carts,
		Resolver: resolver,
		Shipping: calc,
		Vouchers: vouchers,
		Events:   &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}},
		Currency: "IDR",
		Logger:   zerolog.Nop(),
	}
	customer := store.AddCustomer(db.Customer{Name: "Sari"})
	addr := store.AddAddress(db.Address{CustomerID: customer.ID, ReceiverName: "Sari", Region: "Jawa Barat", City: "Bandung"})
	return fixture{store: store, carts: carts, svc: svc, notifier: notifier, customer: customer.ID, address: addr}
}

func (f fixture) product(name string, price int64, stock int32) db.Product {
	return f.store.AddProduct(db.Product{Name: name, SKU: "SKU-" + uuid.NewString()[:6], OriginalPrice: price, Stock: stock})
}

func (f fixture) add(t *testing.T, productID uuid.UUID, variantID *uuid.UUID, qty int) cart.View {
	t.Helper()
	view, err := f.carts.AddLine(context.Background(), f.customer, cart.AddLineInput{ProductID: productID, VariantID: variantID, Quantity: qty})
	require.NoError(t, err)
	return view
}

func (f fixture) code(code string, mutate func(*db.DiscountCode)) db.DiscountCode {
	d := db.DiscountCode{
		Code:         code,
		DiscountType: db.DiscountKindPercentage,
		Value:        decimal.NewFromInt(10),
		StartDate:    now.Add(-time.Hour),
		IsActive:     true,
	}
	if mutate != nil {
		mutate(&d)
	}
	return f.store.AddDiscountCode(d)
}

func TestCheckoutFreezesPricesAndConvertsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("Teh Tarik", 50_000, 10)
	cartView := f.add(t, p.ID, nil, 2)

	view, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusPending, view.Status)
	require.Equal(t, int64(100_000), view.Subtotal)
	require.Equal(t, int64(10_000), view.ShippingFee)
	require.Equal(t, int64(110_000), view.TotalAmount)
	require.Equal(t, "IDR", view.Currency)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "Teh Tarik", view.Lines[0].ProductName)
	require.Equal(t, p.SKU, view.Lines[0].SKU)
	require.Equal(t, int64(50_000), view.Lines[0].UnitPrice)

	require.Equal(t, int32(8), f.store.Product(p.ID).Stock)
	require.Equal(t, db.CartStatusConverted, f.store.Cart(cartView.ID).Status)

	// later price changes never reach the order
	f.store.AddPriceRule(db.PriceRule{
		Name:        "Promo",
		IsPriceList: true,
		StartDate:   now.Add(-time.Hour),
		IsActive:    true,
		Items:       []db.PriceListItem{{ProductID: p.ID, Amount: 1_000}},
	})
	again, err := f.svc.Get(ctx, f.customer, view.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50_000), again.Lines[0].UnitPrice)
	require.Equal(t, int64(110_000), again.TotalAmount)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, events.TopicOrderCreated, f.notifier.events[0].Topic)
	require.Equal(t, view.ID, f.notifier.events[0].AggregateID)

	next, err := f.carts.Get(ctx, f.customer, cart.TotalsOptions{ApplyDiscount: true})
	require.NoError(t, err)
	require.NotEqual(t, cartView.ID, next.ID)
	require.Empty(t, next.Lines)
}

func TestCheckoutResolvesPricesFresh(t *testing.T) {
	f := newFixture(t)
	p := f.product("Kopi Toraja", 100_000, 10)
	f.add(t, p.ID, nil, 1)

	f.store.AddPriceRule(db.PriceRule{
		Name:        "Flash",
		IsPriceList: true,
		StartDate:   now.Add(-time.Minute),
		IsActive:    true,
		Items:       []db.PriceListItem{{ProductID: p.ID, Amount: 70_000}},
	})

	view, err := f.svc.Checkout(context.Background(), f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)
	require.Equal(t, int64(70_000), view.Lines[0].UnitPrice)
	require.Equal(t, int64(100_000), view.Lines[0].OriginalPrice)
	require.NotEmpty(t, view.Lines[0].AppliedRule)
}

func TestCheckoutPartialSelectionKeepsCartActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product("A", 40_000, 5)
	b := f.product("B", 60_000, 5)
	f.add(t, a.ID, nil, 1)
	cartView := f.add(t, b.ID, nil, 1)

	var lineA uuid.UUID
	for _, l := range cartView.Lines {
		if l.ProductID == a.ID {
			lineA = l.ID
		}
	}
	view, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{LineIDs: []uuid.UUID{lineA}, AddressID: &f.address.ID})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, a.ID, view.Lines[0].ProductID)

	c := f.store.Cart(cartView.ID)
	require.Equal(t, db.CartStatusActive, c.Status)
	require.Equal(t, int64(60_000), c.Subtotal)
	lines, err := f.store.ListCartLines(ctx, cartView.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, b.ID, lines[0].ProductID)
}

func TestCheckoutAllocatesDiscountAndRedeems(t *testing.T) {
	f := newFixture(t)
	a := f.product("A", 100_000, 5)
	b := f.product("B", 200_000, 5)
	f.add(t, a.ID, nil, 1)
	f.add(t, b.ID, nil, 1)
	limit := int32(1)
	dc := f.code("HEMAT10", func(d *db.DiscountCode) { d.UsageLimit = &limit })

	code := "hemat10"
	view, err := f.svc.Checkout(context.Background(), f.customer, order.CheckoutInput{AddressID: &f.address.ID, DiscountCode: &code})
	require.NoError(t, err)
	require.Equal(t, int64(300_000), view.Subtotal)
	require.Equal(t, int64(30_000), view.DiscountAmount)
	require.Equal(t, int64(10_000), view.ShippingFee)
	require.Equal(t, int64(280_000), view.TotalAmount)
	require.Equal(t, "HEMAT10", *view.DiscountCode)

	var sum int64
	for _, l := range view.Lines {
		sum += l.Discount
		require.Equal(t, l.UnitPrice*int64(l.Quantity)-l.Discount, l.LineTotal)
		if l.ProductID == a.ID {
			require.Equal(t, int64(10_000), l.Discount)
		}
	}
	require.Equal(t, int64(30_000), sum)
	require.Equal(t, int32(1), f.store.DiscountCode(dc.ID).UsageCount)
}

func TestCheckoutScopedDiscountOnlyTouchesMatchingLines(t *testing.T) {
	f := newFixture(t)
	a := f.product("A", 100_000, 5)
	b := f.product("B", 100_000, 5)
	f.add(t, a.ID, nil, 1)
	f.add(t, b.ID, nil, 1)
	f.code("KHUSUS", func(d *db.DiscountCode) { d.ProductIDs = []uuid.UUID{b.ID} })

	code := "KHUSUS"
	view, err := f.svc.Checkout(context.Background(), f.customer, order.CheckoutInput{AddressID: &f.address.ID, DiscountCode: &code})
	require.NoError(t, err)
	require.Equal(t, int64(10_000), view.DiscountAmount)
	for _, l := range view.Lines {
		if l.ProductID == a.ID {
			require.Zero(t, l.Discount)
		} else {
			require.Equal(t, int64(10_000), l.Discount)
		}
	}
}

func TestCheckoutRejectsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product("A", 50_000, 5)
	b := f.product("B", 50_000, 5)
	cartView := f.add(t, a.ID, nil, 2)
	f.add(t, b.ID, nil, 3)

	// stock drops below the cart quantity after the line was added
	f.store.AddProduct(db.Product{ID: b.ID, Name: b.Name, SKU: b.SKU, OriginalPrice: b.OriginalPrice, Stock: 1})

	_, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.ErrorIs(t, err, common.ErrInsufficientStock)
	require.Equal(t, int32(5), f.store.Product(a.ID).Stock)
	require.Empty(t, f.store.Orders())
	require.Equal(t, db.CartStatusActive, f.store.Cart(cartView.ID).Status)
	require.Empty(t, f.notifier.events)

	f.store.FailOn("CreateOrderLine", errors.New("disk full"))
	f.store.AddProduct(db.Product{ID: b.ID, Name: b.Name, SKU: b.SKU, OriginalPrice: b.OriginalPrice, Stock: 5})
	_, err = f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, int32(5), f.store.Product(a.ID).Stock)
	require.Empty(t, f.store.Orders())
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.ErrorIs(t, err, common.ErrNotFound)

	p := f.product("A", 50_000, 5)
	f.add(t, p.ID, nil, 1)

	_, err = f.svc.Checkout(ctx, f.customer, order.CheckoutInput{})
	require.ErrorIs(t, err, common.ErrValidation)

	foreign := f.store.AddAddress(db.Address{CustomerID: uuid.New(), Region: "Bali"})
	_, err = f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &foreign.ID})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID, LineIDs: []uuid.UUID{uuid.New()}})
	require.ErrorIs(t, err, common.ErrValidation)

	f.code("MINIMUM", func(d *db.DiscountCode) { d.MinOrderAmount = 200_000 })
	code := "MINIMUM"
	_, err = f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID, DiscountCode: &code})
	require.ErrorIs(t, err, common.ErrDiscountNotApplicable)
	require.ErrorIs(t, err, voucher.ErrMinimumSpendUnmet)

	require.Empty(t, f.store.Orders())
	require.Equal(t, int32(5), f.store.Product(p.ID).Stock)
}

func TestCheckoutUsesCartAddressAndCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 100_000, 5)
	line := f.add(t, p.ID, nil, 1).Lines[0]
	f.code("CART", func(d *db.DiscountCode) { d.DiscountType = db.DiscountKindFreeShipping })

	_, err := f.carts.SetShippingAddress(ctx, f.customer, f.address.ID)
	require.NoError(t, err)
	_, err = f.carts.ApplyDiscountCode(ctx, f.customer, "CART", []uuid.UUID{line.ID})
	require.NoError(t, err)

	view, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{})
	require.NoError(t, err)
	require.Equal(t, f.address.ID, view.AddressID)
	require.Equal(t, int64(10_000), view.ShippingFee)
	require.Equal(t, int64(10_000), view.DiscountAmount)
	require.Equal(t, int64(100_000), view.TotalAmount)
	require.Zero(t, view.Lines[0].Discount)
}

func TestCheckoutIdempotencyKeyReturnsSameOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 50_000, 5)
	f.add(t, p.ID, nil, 1)
	key := "checkout-123"

	first, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID, IdempotencyKey: &key})
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID, IdempotencyKey: &key})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.store.Orders(), 1)
	require.Equal(t, int32(4), f.store.Product(p.ID).Stock)
	require.Len(t, f.notifier.events, 1)
}

func TestCheckoutVariantStock(t *testing.T) {
	f := newFixture(t)
	p := f.product("Kaos", 80_000, 100)
	v := f.store.AddVariant(db.Variant{ProductID: p.ID, Name: "XL", SKU: "KAOS-XL", OriginalPrice: 90_000, Stock: 3})
	f.add(t, p.ID, &v.ID, 2)

	view, err := f.svc.Checkout(context.Background(), f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)
	require.Equal(t, "KAOS-XL", view.Lines[0].SKU)
	require.Equal(t, int64(90_000), view.Lines[0].UnitPrice)
	require.Equal(t, int32(1), f.store.Variant(v.ID).Stock)
	require.Equal(t, int32(100), f.store.Product(p.ID).Stock)
}

func TestStatusTable(t *testing.T) {
	all := []db.OrderStatus{
		db.OrderStatusPending, db.OrderStatusConfirmed, db.OrderStatusProcessing, db.OrderStatusShipped,
		db.OrderStatusDelivered, db.OrderStatusCancelled, db.OrderStatusRefunded,
	}
	allowed := map[db.OrderStatus][]db.OrderStatus{
		db.OrderStatusPending:    {db.OrderStatusConfirmed, db.OrderStatusCancelled},
		db.OrderStatusConfirmed:  {db.OrderStatusProcessing, db.OrderStatusCancelled},
		db.OrderStatusProcessing: {db.OrderStatusShipped, db.OrderStatusCancelled},
		db.OrderStatusShipped:    {db.OrderStatusDelivered, db.OrderStatusCancelled},
		db.OrderStatusDelivered:  {db.OrderStatusRefunded},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			require.Equal(t, want, order.CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	status, ok := order.ParseStatus(" Shipped ")
	require.True(t, ok)
	require.Equal(t, db.OrderStatusShipped, status)
	_, ok = order.ParseStatus("paid")
	require.False(t, ok)
}

func TestTransitionLifecycleAndRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 50_000, 5)
	f.add(t, p.ID, nil, 2)
	placed, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)
	require.Equal(t, int32(3), f.store.Product(p.ID).Stock)

	for _, to := range []db.OrderStatus{db.OrderStatusConfirmed, db.OrderStatusProcessing, db.OrderStatusShipped} {
		view, err := f.svc.Transition(ctx, placed.ID, to)
		require.NoError(t, err)
		require.Equal(t, to, view.Status)
	}
	require.Equal(t, int32(3), f.store.Product(p.ID).Stock)

	_, err = f.svc.Transition(ctx, placed.ID, db.OrderStatusRefunded)
	require.ErrorIs(t, err, common.ErrInvalidStateTransition)

	view, err := f.svc.Transition(ctx, placed.ID, db.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusCancelled, view.Status)
	require.Equal(t, int32(5), f.store.Product(p.ID).Stock)

	_, err = f.svc.Transition(ctx, placed.ID, db.OrderStatusPending)
	require.ErrorIs(t, err, common.ErrInvalidStateTransition)

	_, err = f.svc.Transition(ctx, uuid.New(), db.OrderStatusConfirmed)
	require.ErrorIs(t, err, common.ErrNotFound)

	var changed int
	for _, ev := range f.notifier.events {
		if ev.Topic == events.TopicOrderStatusChanged {
			changed++
		}
	}
	require.Equal(t, 4, changed)
}

func TestRefundRestocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 50_000, 5)
	f.add(t, p.ID, nil, 1)
	placed, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)

	for _, to := range []db.OrderStatus{db.OrderStatusConfirmed, db.OrderStatusProcessing, db.OrderStatusShipped, db.OrderStatusDelivered} {
		_, err := f.svc.Transition(ctx, placed.ID, to)
		require.NoError(t, err)
	}
	_, err = f.svc.Transition(ctx, placed.ID, db.OrderStatusCancelled)
	require.ErrorIs(t, err, common.ErrInvalidStateTransition)

	_, err = f.svc.Transition(ctx, placed.ID, db.OrderStatusRefunded)
	require.NoError(t, err)
	require.Equal(t, int32(5), f.store.Product(p.ID).Stock)
}

func TestCancelChecksOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 50_000, 5)
	f.add(t, p.ID, nil, 1)
	placed, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, uuid.New(), placed.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.svc.Get(ctx, uuid.New(), placed.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	view, err := f.svc.Cancel(ctx, f.customer, placed.ID)
	require.NoError(t, err)
	require.Equal(t, db.OrderStatusCancelled, view.Status)
	require.Equal(t, int32(5), f.store.Product(p.ID).Stock)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("A", 10_000, 10)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		f.add(t, p.ID, nil, 1)
		view, err := f.svc.Checkout(ctx, f.customer, order.CheckoutInput{AddressID: &f.address.ID})
		require.NoError(t, err)
		ids = append(ids, view.ID)
	}

	page, total, err := f.svc.List(ctx, f.customer, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 2)
	require.Equal(t, ids[2], page[0].ID)
	require.Nil(t, page[0].Lines)

	page, _, err = f.svc.List(ctx, f.customer, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[0], page[0].ID)

	others, total, err := f.svc.List(ctx, uuid.New(), 1, 20)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, others)
}
