package shipping

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
)

const (
	DefaultFreeShippingThreshold int64 = 500_000
	DefaultFlatFee               int64 = 10_000
	DefaultMethod                      = "standard"
)

// Querier captures the lookups the calculator needs.
type Querier interface {
	GetAddressForCustomer(ctx context.Context, arg db.GetAddressForCustomerParams) (db.Address, error)
	GetShippingFeeTier(ctx context.Context, arg db.GetShippingFeeTierParams) (db.ShippingFeeTier, error)
}

// Config holds the fee policy.
type Config struct {
	FreeShippingThreshold int64
	DefaultFee            int64
	Method                string
}

// Calculator derives the shipping fee for a cart or order.
type Calculator struct {
	Config Config
	Cache  *Cache
	Logger zerolog.Logger
}

// NewCalculator fills unset policy values with the defaults.
func NewCalculator(cfg Config, cache *Cache, logger zerolog.Logger) *Calculator {
	if cfg.FreeShippingThreshold <= 0 {
		cfg.FreeShippingThreshold = DefaultFreeShippingThreshold
	}
	if cfg.DefaultFee <= 0 {
		cfg.DefaultFee = DefaultFlatFee
	}
	if strings.TrimSpace(cfg.Method) == "" {
		cfg.Method = DefaultMethod
	}
	return &Calculator{Config: cfg, Cache: cache, Logger: logger}
}

// Address loads an address owned by customerID. A missing or foreign address
// is reported as NotFound.
func (c *Calculator) Address(ctx context.Context, q Querier, customerID, addressID uuid.UUID) (db.Address, error) {
	addr, err := q.GetAddressForCustomer(ctx, db.GetAddressForCustomerParams{ID: addressID, CustomerID: customerID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Address{}, common.NotFound("address")
		}
		return db.Address{}, err
	}
	return addr, nil
}

// Quote returns the fee for shipping subtotal worth of goods to addressID.
// No address yet means no fee; so does a subtotal at or above the free
// shipping threshold. Otherwise the region tier applies, falling back to the
// flat default fee.
func (c *Calculator) Quote(ctx context.Context, q Querier, customerID uuid.UUID, addressID *uuid.UUID, subtotal int64) (int64, error) {
	if addressID == nil {
		return 0, nil
	}
	addr, err := c.Address(ctx, q, customerID, *addressID)
	if err != nil {
		return 0, err
	}
	if subtotal <= 0 || subtotal >= c.Config.FreeShippingThreshold {
		return 0, nil
	}
	return c.RegionFee(ctx, q, addr.Region)
}

// RegionFee looks up the active tier for region through the cache.
func (c *Calculator) RegionFee(ctx context.Context, q Querier, region string) (int64, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return c.Config.DefaultFee, nil
	}
	method := c.Config.Method
	entry, hit, err := c.Cache.get(ctx, region, method)
	if err != nil {
		c.Logger.Warn().Err(err).Str("region", region).Msg("shipping tier cache read failed")
	}
	if hit {
		return c.feeFor(entry), nil
	}

	tier, err := q.GetShippingFeeTier(ctx, db.GetShippingFeeTierParams{Region: region, Method: method})
	switch {
	case err == nil:
		entry = tierEntry{Found: true, Fee: tier.Fee}
	case errors.Is(err, pgx.ErrNoRows):
		entry = tierEntry{}
	default:
		return 0, err
	}
	if err := c.Cache.put(ctx, region, method, entry); err != nil {
		c.Logger.Warn().Err(err).Str("region", region).Msg("shipping tier cache write failed")
	}
	return c.feeFor(entry), nil
}

func (c *Calculator) feeFor(t tierEntry) int64 {
	if t.Found && t.Fee >= 0 {
		return t.Fee
	}
	return c.Config.DefaultFee
}
