package dbtest

import (
	"slices"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/db"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (s *Store) AddProduct(p db.Product) db.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&p.ID)
	if p.FinalPrice == 0 {
		p.FinalPrice = p.OriginalPrice
	}
	s.data.products[p.ID] = p
	return p
}

func (s *Store) AddVariant(v db.Variant) db.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&v.ID)
	if v.FinalPrice == 0 {
		v.FinalPrice = v.OriginalPrice
	}
	s.data.variants[v.ID] = v
	return v
}

func (s *Store) AddCustomer(c db.Customer) db.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&c.ID)
	s.data.customers[c.ID] = c
	return c
}

func (s *Store) AddPriceRule(r db.PriceRule) db.PriceRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&r.ID)
	for i := range r.Items {
		r.Items[i].RuleID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.data.priceRules = append(s.data.priceRules, r)
	return r
}

func (s *Store) AddQuantityBreak(b db.QuantityBreak) db.QuantityBreak {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&b.ID)
	for i := range b.Items {
		b.Items[i].BreakID = b.ID
	}
	for i := range b.Tiers {
		b.Tiers[i].BreakID = b.ID
		if b.Tiers[i].Position == 0 {
			b.Tiers[i].Position = int32(i + 1)
		}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.data.quantityBreaks = append(s.data.quantityBreaks, b)
	return b
}

func (s *Store) AddDiscountCode(d db.DiscountCode) db.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&d.ID)
	s.data.discountCodes[d.ID] = d
	return d
}

func (s *Store) AddShippingTier(t db.ShippingFeeTier) db.ShippingFeeTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&t.ID)
	s.data.shippingTiers = append(s.data.shippingTiers, t)
	return t
}

func (s *Store) AddAddress(a db.Address) db.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&a.ID)
	s.data.addresses[a.ID] = a
	return a
}

// Product returns the stored product, for assertions.
func (s *Store) Product(id uuid.UUID) db.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.products[id]
}

func (s *Store) Variant(id uuid.UUID) db.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.variants[id]
}

func (s *Store) DiscountCode(id uuid.UUID) db.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.discountCodes[id]
}

func (s *Store) Cart(id uuid.UUID) db.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.carts[id]
}

func (s *Store) CartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.carts)
}

func (s *Store) Orders() []db.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.orders)
}

func (s *Store) Events() []db.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.events)
}
