// Package dbtest provides an in-memory db.Querier and db.TxManager for unit
// tests. Transactions are serialised and roll back by restoring a snapshot.
package dbtest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-commerce/internal/db"
)

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	Now func() time.Time

	data  state
	fails map[string]error
	seq   int64
}

type state struct {
	products       map[uuid.UUID]db.Product
	variants       map[uuid.UUID]db.Variant
	customers      map[uuid.UUID]db.Customer
	priceRules     []db.PriceRule
	quantityBreaks []db.QuantityBreak
	discountCodes  map[uuid.UUID]db.DiscountCode
	shippingTiers  []db.ShippingFeeTier
	addresses      map[uuid.UUID]db.Address
	carts          map[uuid.UUID]db.Cart
	cartLines      []db.CartLine
	orders         []db.Order
	orderLines     []db.OrderLine
	events         []db.DomainEvent
}

var (
	_ db.Querier   = (*Store)(nil)
	_ db.TxManager = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		Now: time.Now,
		data: state{
			products:      map[uuid.UUID]db.Product{},
			variants:      map[uuid.UUID]db.Variant{},
			customers:     map[uuid.UUID]db.Customer{},
			discountCodes: map[uuid.UUID]db.DiscountCode{},
			addresses:     map[uuid.UUID]db.Address{},
			carts:         map[uuid.UUID]db.Cart{},
		},
		fails: map[string]error{},
	}
}

// WithinTx implements db.TxManager. Any error returned by fn restores the
// state captured before fn ran.
func (s *Store) WithinTx(_ context.Context, fn func(q db.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// FailOn makes the next call to the named Querier method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[method] = err
}

func (s *Store) failure(method string) error {
	if err, ok := s.fails[method]; ok {
		delete(s.fails, method)
		return err
	}
	return nil
}

func (s *Store) now() time.Time {
	s.seq++
	base := time.Now()
	if s.Now != nil {
		base = s.Now()
	}
	return base.Add(time.Duration(s.seq) * time.Microsecond)
}

func (st state) clone() state {
	out := state{
		products:       cloneMap(st.products),
		variants:       cloneMap(st.variants),
		customers:      cloneMap(st.customers),
		priceRules:     slices.Clone(st.priceRules),
		quantityBreaks: slices.Clone(st.quantityBreaks),
		discountCodes:  cloneMap(st.discountCodes),
		shippingTiers:  slices.Clone(st.shippingTiers),
		addresses:      cloneMap(st.addresses),
		carts:          cloneMap(st.carts),
		cartLines:      slices.Clone(st.cartLines),
		orders:         slices.Clone(st.orders),
		orderLines:     slices.Clone(st.orderLines),
		events:         slices.Clone(st.events),
	}
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func activeAt(isActive bool, start time.Time, end *time.Time, at time.Time) bool {
	if !isActive || start.After(at) {
		return false
	}
	return end == nil || !end.Before(at)
}

// Catalog

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (db.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetProduct"); err != nil {
		return db.Product{}, err
	}
	p, ok := s.data.products[id]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetVariant(_ context.Context, id uuid.UUID) (db.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetVariant"); err != nil {
		return db.Variant{}, err
	}
	v, ok := s.data.variants[id]
	if !ok {
		return db.Variant{}, pgx.ErrNoRows
	}
	return v, nil
}

func (s *Store) GetCustomer(_ context.Context, id uuid.UUID) (db.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.customers[id]
	if !ok {
		return db.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *Store) AdjustProductStock(_ context.Context, arg db.AdjustStockParams) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AdjustProductStock"); err != nil {
		return 0, err
	}
	p, ok := s.data.products[arg.ID]
	if !ok || p.Stock+arg.Delta < 0 {
		return 0, pgx.ErrNoRows
	}
	p.Stock += arg.Delta
	s.data.products[arg.ID] = p
	return p.Stock, nil
}

func (s *Store) AdjustVariantStock(_ context.Context, arg db.AdjustStockParams) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AdjustVariantStock"); err != nil {
		return 0, err
	}
	v, ok := s.data.variants[arg.ID]
	if !ok || v.Stock+arg.Delta < 0 {
		return 0, pgx.ErrNoRows
	}
	v.Stock += arg.Delta
	s.data.variants[arg.ID] = v
	return v.Stock, nil
}

func (s *Store) GetAddressForCustomer(_ context.Context, arg db.GetAddressForCustomerParams) (db.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.addresses[arg.ID]
	if !ok || a.CustomerID != arg.CustomerID {
		return db.Address{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetShippingFeeTier(_ context.Context, arg db.GetShippingFeeTierParams) (db.ShippingFeeTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetShippingFeeTier"); err != nil {
		return db.ShippingFeeTier{}, err
	}
	for _, t := range s.data.shippingTiers {
		if t.IsActive && strings.EqualFold(t.Region, arg.Region) && t.Method == arg.Method {
			return t, nil
		}
	}
	return db.ShippingFeeTier{}, pgx.ErrNoRows
}

// Rules

func (s *Store) ListActivePriceLists(_ context.Context, arg db.RuleScopeParams) ([]db.PriceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListActivePriceLists"); err != nil {
		return nil, err
	}
	var out []db.PriceRule
	for _, r := range s.data.priceRules {
		if !r.IsPriceList || !activeAt(r.IsActive, r.StartDate, r.EndDate, arg.At) {
			continue
		}
		for _, item := range r.Items {
			if item.ProductID == arg.ProductID && sameUUID(item.VariantID, arg.VariantID) {
				match := r
				match.Items = []db.PriceListItem{item}
				out = append(out, match)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListActiveQuantityBreaks(_ context.Context, arg db.RuleScopeParams) ([]db.QuantityBreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListActiveQuantityBreaks"); err != nil {
		return nil, err
	}
	var out []db.QuantityBreak
	for _, b := range s.data.quantityBreaks {
		if !activeAt(b.IsActive, b.StartDate, b.EndDate, arg.At) {
			continue
		}
		for _, item := range b.Items {
			if item.ProductID != arg.ProductID {
				continue
			}
			if item.VariantID == nil || sameUUID(item.VariantID, arg.VariantID) {
				b.Tiers = slices.Clone(b.Tiers)
				sort.SliceStable(b.Tiers, func(i, j int) bool { return b.Tiers[i].Position < b.Tiers[j].Position })
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListActiveCustomPricing(_ context.Context, arg db.RuleScopeParams) ([]db.PriceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListActiveCustomPricing"); err != nil {
		return nil, err
	}
	var out []db.PriceRule
	for _, r := range s.data.priceRules {
		if r.IsPriceList || !activeAt(r.IsActive, r.StartDate, r.EndDate, arg.At) {
			continue
		}
		if len(r.ProductIDs) == 0 || slices.Contains(r.ProductIDs, arg.ProductID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) GetDiscountCodeByCode(_ context.Context, code string) (db.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.data.discountCodes {
		if strings.EqualFold(d.Code, code) {
			return d, nil
		}
	}
	return db.DiscountCode{}, pgx.ErrNoRows
}

func (s *Store) IncrementDiscountUsage(_ context.Context, id uuid.UUID) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("IncrementDiscountUsage"); err != nil {
		return 0, err
	}
	d, ok := s.data.discountCodes[id]
	if !ok || (d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit) {
		return 0, pgx.ErrNoRows
	}
	d.UsageCount++
	s.data.discountCodes[id] = d
	return d.UsageCount, nil
}

// Carts

func (s *Store) GetActiveCartByCustomer(_ context.Context, customerID uuid.UUID) (db.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.data.carts {
		if c.CustomerID == customerID && c.Status == db.CartStatusActive {
			return c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (s *Store) CreateCart(_ context.Context, customerID uuid.UUID) (db.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateCart"); err != nil {
		return db.Cart{}, err
	}
	now := s.now()
	c := db.Cart{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     db.CartStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.data.carts[c.ID] = c
	return c, nil
}

func (s *Store) updateCart(id uuid.UUID, fn func(*db.Cart)) error {
	c, ok := s.data.carts[id]
	if !ok {
		return nil
	}
	fn(&c)
	c.UpdatedAt = s.now()
	s.data.carts[id] = c
	return nil
}

func (s *Store) UpdateCartStatus(_ context.Context, arg db.UpdateCartStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateCartStatus"); err != nil {
		return err
	}
	return s.updateCart(arg.ID, func(c *db.Cart) { c.Status = arg.Status })
}

func (s *Store) UpdateCartDiscountCode(_ context.Context, arg db.UpdateCartDiscountCodeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateCartDiscountCode"); err != nil {
		return err
	}
	return s.updateCart(arg.ID, func(c *db.Cart) { c.DiscountCode = arg.DiscountCode })
}

func (s *Store) UpdateCartAddress(_ context.Context, arg db.UpdateCartAddressParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCart(arg.ID, func(c *db.Cart) { c.AddressID = arg.AddressID })
}

func (s *Store) UpdateCartTotals(_ context.Context, arg db.UpdateCartTotalsParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateCartTotals"); err != nil {
		return err
	}
	return s.updateCart(arg.ID, func(c *db.Cart) {
		c.Subtotal = arg.Subtotal
		c.ShippingFee = arg.ShippingFee
		c.DiscountAmount = arg.DiscountAmount
		c.TotalAmount = arg.TotalAmount
	})
}

func (s *Store) ListCartLines(_ context.Context, cartID uuid.UUID) ([]db.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.CartLine
	for _, l := range s.data.cartLines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) GetCartLine(_ context.Context, arg db.GetCartLineParams) (db.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.data.cartLines {
		if l.ID == arg.ID && l.CartID == arg.CartID {
			return l, nil
		}
	}
	return db.CartLine{}, pgx.ErrNoRows
}

func (s *Store) FindCartLine(_ context.Context, arg db.FindCartLineParams) (db.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.data.cartLines {
		if l.CartID == arg.CartID && l.ProductID == arg.ProductID && sameUUID(l.VariantID, arg.VariantID) {
			return l, nil
		}
	}
	return db.CartLine{}, pgx.ErrNoRows
}

func (s *Store) CreateCartLine(_ context.Context, arg db.CreateCartLineParams) (db.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateCartLine"); err != nil {
		return db.CartLine{}, err
	}
	now := s.now()
	l := db.CartLine{
		ID:            uuid.New(),
		CartID:        arg.CartID,
		ProductID:     arg.ProductID,
		VariantID:     arg.VariantID,
		Quantity:      arg.Quantity,
		UnitPrice:     arg.UnitPrice,
		OriginalPrice: arg.OriginalPrice,
		Discount:      arg.Discount,
		AppliedRule:   arg.AppliedRule,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.data.cartLines = append(s.data.cartLines, l)
	return l, nil
}

func (s *Store) UpdateCartLine(_ context.Context, arg db.UpdateCartLineParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateCartLine"); err != nil {
		return err
	}
	for i, l := range s.data.cartLines {
		if l.ID == arg.ID {
			l.Quantity = arg.Quantity
			l.UnitPrice = arg.UnitPrice
			l.OriginalPrice = arg.OriginalPrice
			l.Discount = arg.Discount
			l.AppliedRule = arg.AppliedRule
			l.UpdatedAt = s.now()
			s.data.cartLines[i] = l
		}
	}
	return nil
}

func (s *Store) DeleteCartLine(_ context.Context, arg db.DeleteCartLineParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.cartLines = slices.DeleteFunc(s.data.cartLines, func(l db.CartLine) bool {
		return l.ID == arg.ID && l.CartID == arg.CartID
	})
	return nil
}

func (s *Store) DeleteCartLines(_ context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.cartLines = slices.DeleteFunc(s.data.cartLines, func(l db.CartLine) bool {
		return l.CartID == cartID
	})
	return nil
}

// Orders

func (s *Store) CreateOrder(_ context.Context, arg db.CreateOrderParams) (db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateOrder"); err != nil {
		return db.Order{}, err
	}
	now := s.now()
	o := db.Order{
		ID:             uuid.New(),
		CustomerID:     arg.CustomerID,
		CartID:         arg.CartID,
		Status:         arg.Status,
		AddressID:      arg.AddressID,
		DiscountCode:   arg.DiscountCode,
		Subtotal:       arg.Subtotal,
		DiscountAmount: arg.DiscountAmount,
		ShippingFee:    arg.ShippingFee,
		TotalAmount:    arg.TotalAmount,
		Currency:       arg.Currency,
		IdempotencyKey: arg.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.data.orders = append(s.data.orders, o)
	return o, nil
}

func (s *Store) CreateOrderLine(_ context.Context, arg db.CreateOrderLineParams) (db.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateOrderLine"); err != nil {
		return db.OrderLine{}, err
	}
	l := db.OrderLine{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		ProductID:     arg.ProductID,
		VariantID:     arg.VariantID,
		ProductName:   arg.ProductName,
		SKU:           arg.SKU,
		Quantity:      arg.Quantity,
		OriginalPrice: arg.OriginalPrice,
		UnitPrice:     arg.UnitPrice,
		Discount:      arg.Discount,
		LineTotal:     arg.LineTotal,
		AppliedRule:   arg.AppliedRule,
	}
	s.data.orderLines = append(s.data.orderLines, l)
	return l, nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.data.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return db.Order{}, pgx.ErrNoRows
}

func (s *Store) GetOrderByIdempotencyKey(_ context.Context, arg db.GetOrderByIdempotencyKeyParams) (db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.data.orders {
		if o.CustomerID == arg.CustomerID && o.IdempotencyKey != nil && *o.IdempotencyKey == arg.IdempotencyKey {
			return o, nil
		}
	}
	return db.Order{}, pgx.ErrNoRows
}

func (s *Store) ListOrdersByCustomer(_ context.Context, customerID uuid.UUID) ([]db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Order
	for i := len(s.data.orders) - 1; i >= 0; i-- {
		if s.data.orders[i].CustomerID == customerID {
			out = append(out, s.data.orders[i])
		}
	}
	return out, nil
}

func (s *Store) ListOrderLines(_ context.Context, orderID uuid.UUID) ([]db.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.OrderLine
	for _, l := range s.data.orderLines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, arg db.UpdateOrderStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateOrderStatus"); err != nil {
		return err
	}
	for i, o := range s.data.orders {
		if o.ID == arg.ID {
			o.Status = arg.Status
			o.UpdatedAt = s.now()
			s.data.orders[i] = o
		}
	}
	return nil
}

// Events

func (s *Store) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertDomainEvent"); err != nil {
		return db.DomainEvent{}, err
	}
	ev := db.DomainEvent{
		ID:          uuid.New(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     append([]byte(nil), arg.Payload...),
		OccurredAt:  s.now(),
	}
	s.data.events = append(s.data.events, ev)
	return ev, nil
}
