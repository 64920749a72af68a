package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/app"
	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/common"
	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/health"
	"github.com/noah-isme/toko-commerce/internal/obs"
	"github.com/noah-isme/toko-commerce/internal/order"
	"github.com/noah-isme/toko-commerce/internal/pricing"
	"github.com/noah-isme/toko-commerce/internal/ratelimit"
	"github.com/noah-isme/toko-commerce/internal/security"
	"github.com/noah-isme/toko-commerce/internal/voucher"
)

type routerDeps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Services    app.Services
	Querier     voucher.Querier
	Redis       *redis.Client
	Limiter     ratelimit.Allower
	Probes      map[string]health.Probe
	HTTPMetrics *obs.HTTPMetrics
	Tracing     bool
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.Config
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
		r.Use(obs.RouteAttributes)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.CustomerHeader, common.AdminKeyHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{"Link", "X-Total-Count", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Probes: d.Probes, Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByCustomer("api:"),
			Window: time.Minute,
			Max:    cfg.RateLimitPerMinute,
		},
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}
	mutations := limit
	mutations.Config.Skip = ratelimit.SkipReads
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}

	priceHandler := &pricing.Handler{Resolver: d.Services.Resolver, Currency: cfg.CurrencyCode}
	cartHandler := &cart.Handler{Svc: d.Services.Carts, Currency: cfg.CurrencyCode}
	voucherHandler := &voucher.Handler{Q: d.Querier, Svc: d.Services.Vouchers}
	orderHandler := &order.Handler{Svc: d.Services.Orders}
	orderAdmin := &order.AdminHandler{Svc: d.Services.Orders}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{HSTSMaxAge: cfg.HSTSMaxAge}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		v.With(common.OptionalCustomer).Get("/prices/{productId}", priceHandler.Quote)
		v.With(common.OptionalCustomer, limit.Middleware).Post("/discount-codes/preview", voucherHandler.Preview)

		v.Route("/cart", func(c chi.Router) {
			c.Use(common.RequireCustomer)
			c.Use(mutations.Middleware)
			cartHandler.Routes(c)
		})

		// Checkout replays are resolved against the persisted idempotency key
		// so a retry returns the original order instead of a conflict.
		v.With(common.RequireCustomer, limit.Middleware).Post("/checkout", orderHandler.Checkout)

		v.Route("/orders", func(o chi.Router) {
			o.Use(common.RequireCustomer)
			o.Get("/", orderHandler.List)
			o.Get("/{orderId}", orderHandler.Get)
			o.With(idem.Middleware).Post("/{orderId}/cancel", orderHandler.Cancel)
		})

		v.Route("/admin", func(a chi.Router) {
			a.Use(common.RequireAdminKey(cfg.AdminKey))
			a.Patch("/orders/{id}/status", orderAdmin.PatchStatus)
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
