package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/obs"
)

// Tier names the precedence level that produced a price.
type Tier string

const (
	TierPriceList     Tier = "price_list"
	TierQuantityBreak Tier = "quantity_break"
	TierCustomPricing Tier = "custom_pricing"
	TierBase          Tier = "base"
)

// Source is the read-only view of the catalog and rule repositories the
// resolver needs. db.Querier satisfies it, inside or outside a transaction.
type Source interface {
	GetProduct(ctx context.Context, id uuid.UUID) (db.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (db.Variant, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (db.Customer, error)
	ListActivePriceLists(ctx context.Context, arg db.RuleScopeParams) ([]db.PriceRule, error)
	ListActiveQuantityBreaks(ctx context.Context, arg db.RuleScopeParams) ([]db.QuantityBreak, error)
	ListActiveCustomPricing(ctx context.Context, arg db.RuleScopeParams) ([]db.PriceRule, error)
}

// Options disables individual tiers for a single resolution.
type Options struct {
	SkipPriceList     bool
	SkipQuantityBreak bool
	SkipCustomPricing bool
}

func (o Options) skips(t Tier) bool {
	switch t {
	case TierPriceList:
		return o.SkipPriceList
	case TierQuantityBreak:
		return o.SkipQuantityBreak
	case TierCustomPricing:
		return o.SkipCustomPricing
	}
	return false
}

// Request identifies what to price. CustomerID is nil for anonymous callers.
type Request struct {
	CustomerID *uuid.UUID
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	Quantity   int
	Options    Options
}

// Priceable is the product or variant being priced.
type Priceable struct {
	ProductID     uuid.UUID
	VariantID     *uuid.UUID
	Name          string
	SKU           string
	OriginalPrice Money
	Stock         int32
}

// Audience is who the price is for.
type Audience struct {
	CustomerID *uuid.UUID
	MarketID   *uuid.UUID
}

// AppliedRule records which rule produced the price.
type AppliedRule struct {
	Tier         Tier            `json:"tier"`
	RuleID       uuid.UUID       `json:"ruleId"`
	Name         string          `json:"name"`
	DiscountType db.DiscountKind `json:"discountType,omitempty"`
	Value        decimal.Decimal `json:"value"`
	MinQuantity  int32           `json:"minQuantity,omitempty"`
}

// Label is the compact form stored on cart and order lines.
func (a *AppliedRule) Label() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", a.Tier, a.RuleID)
}

// Result is a resolved unit price.
type Result struct {
	Item           Priceable    `json:"-"`
	OriginalPrice  Money        `json:"originalPrice"`
	FinalPrice     Money        `json:"finalPrice"`
	DiscountAmount Money        `json:"discountAmount"`
	AppliedRule    *AppliedRule `json:"appliedRule"`
	Quantity       int          `json:"quantity"`
	clamped        bool
}

// Tier reports which tier produced the result.
func (r Result) Tier() Tier {
	if r.AppliedRule == nil {
		return TierBase
	}
	return r.AppliedRule.Tier
}

// Input is what each strategy evaluates.
type Input struct {
	Item     Priceable
	Audience Audience
	Quantity int
	At       time.Time
}

// Strategy is one precedence tier. It reports matched=false to defer to the
// next strategy.
type Strategy interface {
	Tier() Tier
	Evaluate(ctx context.Context, src Source, in Input) (res Result, matched bool, err error)
}

// DefaultStrategies is the fixed precedence order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		PriceListStrategy{},
		QuantityBreakStrategy{},
		CustomPricingStrategy{},
	}
}

// Resolver computes a single authoritative unit price. It never writes.
type Resolver struct {
	Source     Source
	Strategies []Strategy
	Now        func() time.Time
	Logger     zerolog.Logger
}

// NewResolver builds a resolver with the default strategy order.
func NewResolver(src Source, logger zerolog.Logger) *Resolver {
	return &Resolver{Source: src, Strategies: DefaultStrategies(), Now: time.Now, Logger: logger}
}

// Resolve prices req against the resolver's own source.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	return r.ResolveFrom(ctx, r.Source, req)
}

// ResolveFrom prices req against src, typically a transaction-scoped querier.
func (r *Resolver) ResolveFrom(ctx context.Context, src Source, req Request) (res Result, err error) {
	ctx, span := otel.Tracer("pricing").Start(ctx, "pricing.Resolve")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("pricing.tier", string(res.Tier())),
				attribute.Int64("pricing.final_price", res.FinalPrice),
			)
		}
		span.End()
	}()
	if src == nil {
		return Result{}, common.Internal(fmt.Errorf("pricing: source not configured"))
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	span.SetAttributes(
		attribute.String("pricing.product_id", req.ProductID.String()),
		attribute.Int("pricing.quantity", req.Quantity),
	)

	item, err := loadPriceable(ctx, src, req.ProductID, req.VariantID)
	if err != nil {
		return Result{}, err
	}
	audience, err := loadAudience(ctx, src, req.CustomerID)
	if err != nil {
		return Result{}, err
	}
	in := Input{Item: item, Audience: audience, Quantity: req.Quantity, At: r.now()}

	strategies := r.Strategies
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	for _, strategy := range strategies {
		if req.Options.skips(strategy.Tier()) {
			continue
		}
		candidate, matched, evalErr := strategy.Evaluate(ctx, src, in)
		if evalErr != nil {
			return Result{}, fmt.Errorf("pricing: %s: %w", strategy.Tier(), evalErr)
		}
		if matched {
			res = candidate
			break
		}
	}
	if res.AppliedRule == nil {
		res = Result{OriginalPrice: item.OriginalPrice, FinalPrice: item.OriginalPrice}
	}
	res.Item = item
	res.Quantity = req.Quantity
	if res.clamped {
		r.Logger.Warn().
			Err(common.ErrInternalComputation).
			Str("product_id", item.ProductID.String()).
			Str("rule", res.AppliedRule.Label()).
			Int64("original_price", res.OriginalPrice).
			Msg("price clamped at zero")
		if obs.PricingClampTotal != nil {
			obs.PricingClampTotal.Inc()
		}
	}
	if obs.PriceResolutionTotal != nil {
		obs.PriceResolutionTotal.WithLabelValues(string(res.Tier())).Inc()
	}
	return res, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func loadPriceable(ctx context.Context, src Source, productID uuid.UUID, variantID *uuid.UUID) (Priceable, error) {
	product, err := src.GetProduct(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return Priceable{}, common.NotFound("product")
		}
		return Priceable{}, err
	}
	item := Priceable{
		ProductID:     product.ID,
		Name:          product.Name,
		SKU:           product.SKU,
		OriginalPrice: product.OriginalPrice,
		Stock:         product.Stock,
	}
	if variantID == nil {
		return item, nil
	}
	variant, err := src.GetVariant(ctx, *variantID)
	if err != nil {
		if db.IsNotFound(err) {
			return Priceable{}, common.NotFound("variant")
		}
		return Priceable{}, err
	}
	if variant.ProductID != product.ID {
		return Priceable{}, common.NotFound("variant")
	}
	id := variant.ID
	item.VariantID = &id
	item.Name = product.Name + " - " + variant.Name
	item.SKU = variant.SKU
	item.OriginalPrice = variant.OriginalPrice
	item.Stock = variant.Stock
	return item, nil
}

func loadAudience(ctx context.Context, src Source, customerID *uuid.UUID) (Audience, error) {
	if customerID == nil || *customerID == uuid.Nil {
		return Audience{}, nil
	}
	id := *customerID
	audience := Audience{CustomerID: &id}
	customer, err := src.GetCustomer(ctx, id)
	switch {
	case err == nil:
		audience.MarketID = customer.MarketID
	case db.IsNotFound(err):
		// unknown to the customer directory: customer scope still applies, market does not
	default:
		return Audience{}, err
	}
	return audience, nil
}
