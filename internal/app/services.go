package app

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/lock"
	"github.com/noah-isme/toko-commerce/internal/order"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/shipping"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

// Store is what the domain services need from persistence.
type Store interface {
	db.TxManager
	pricing.Source
}

// Services holds the pricing, cart and order services wired together.
type Services struct {
	Resolver *pricing.Resolver
	Shipping *shipping.Calculator
	Vouchers *voucher.Service
	Carts    *cart.Service
	Orders   *order.Service
}

// NewServices wires the domain services. rdb may be nil, in which case the
// shipping tier cache and the cart lock are disabled.
func NewServices(cfg *config.Config, store Store, rdb redis.Cmdable, bus *events.Bus, logger zerolog.Logger) Services {
	resolver := pricing.NewResolver(store, logger.With().Str("component", "pricing").Logger())
	calc := shipping.NewCalculator(shipping.Config{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		DefaultFee:            cfg.DefaultShippingFee,
		Method:                cfg.DefaultShippingMethod,
	}, shipping.NewCache(rdb, cfg.ShippingTierCacheTTL), logger.With().Str("component", "shipping").Logger())
	vouchers := voucher.NewService(logger.With().Str("component", "voucher").Logger())

	carts := &cart.Service{
		Tx:       store,
		Resolver: resolver,
		Shipping: calc,
		Vouchers: vouchers,
		LockTTL:  cfg.CartLockTTL,
		Logger:   logger.With().Str("component", "cart").Logger(),
	}
	if rdb != nil {
		carts.Locker = lock.Locker{R: rdb, MaxWait: cfg.CartLockMaxWait}
	}

	orders := &order.Service{
		Tx:       store,
		Carts:    carts,
		Resolver: resolver,
		Shipping: calc,
		Vouchers: vouchers,
		Events:   bus,
		Currency: cfg.CurrencyCode,
		Logger:   logger.With().Str("component", "order").Logger(),
	}
	return Services{Resolver: resolver, Shipping: calc, Vouchers: vouchers, Carts: carts, Orders: orders}
}
