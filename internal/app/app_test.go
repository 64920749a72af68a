package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-commerce/internal/app"
	"github.com/noah-isme/toko-commerce/internal/cart"
	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/db/dbtest"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/order"
)

func testConfig(redisURL string) *config.Config {
	return &config.Config{
		RedisURL:              redisURL,
		CurrencyCode:          "IDR",
		FreeShippingThreshold: 500_000,
		DefaultShippingFee:    10_000,
		DefaultShippingMethod: "standard",
		ShippingTierCacheTTL:  time.Minute,
		CartLockTTL:           time.Second,
		CartLockMaxWait:       time.Second,
		Events: config.EventsConfig{
			Sink:       config.EventsSinkNone,
			KafkaTopic: "toko.domain-events",
			AsynqQueue: "events",
		},
	}
}

func TestNewServicesCheckoutEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := dbtest.New()
	cfg := testConfig("redis://" + mr.Addr())
	bus, closeBus, err := app.NewEventBus(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeBus() })

	svcs := app.NewServices(cfg, store, rdb, bus, zerolog.Nop())
	customer := store.AddCustomer(db.Customer{Name: "Budi"})
	addr := store.AddAddress(db.Address{CustomerID: customer.ID, ReceiverName: "Budi", Region: "Jawa Barat", City: "Bandung"})
	store.AddShippingTier(db.ShippingFeeTier{Region: "Jawa Barat", Method: "standard", Fee: 15_000, IsActive: true})
	product := store.AddProduct(db.Product{Name: "Kopi", SKU: "KOPI-1", OriginalPrice: 100_000, Stock: 5})

	ctx := context.Background()
	_, err = svcs.Carts.AddLine(ctx, customer.ID, cart.AddLineInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	view, err := svcs.Orders.Checkout(ctx, customer.ID, order.CheckoutInput{AddressID: &addr.ID})
	require.NoError(t, err)
	require.Equal(t, int64(200_000), view.Subtotal)
	require.Equal(t, int64(15_000), view.ShippingFee)
	require.Equal(t, int64(215_000), view.TotalAmount)
	require.Equal(t, "IDR", view.Currency)
	require.Equal(t, int32(3), store.Product(product.ID).Stock)

	var cached bool
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "shipping:tier:") {
			cached = true
		}
	}
	require.True(t, cached, "shipping tier should be cached in redis")

	evs := store.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicOrderCreated, evs[0].Topic)
}

func TestNewServicesWithoutRedis(t *testing.T) {
	store := dbtest.New()
	svcs := app.NewServices(testConfig(""), store, nil, nil, zerolog.Nop())
	require.Nil(t, svcs.Carts.Locker)
	require.NotNil(t, svcs.Orders.Carts)
}

func TestNewRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	for _, backend := range []string{"ulule", "sliding"} {
		limiter, err := app.NewRateLimiter(backend, rdb)
		require.NoError(t, err, backend)
		allowed, _, _, err := limiter.Allow(ctx, backend+":k", time.Minute, 1)
		require.NoError(t, err)
		require.True(t, allowed, backend)
		allowed, _, _, err = limiter.Allow(ctx, backend+":k", time.Minute, 1)
		require.NoError(t, err)
		require.False(t, allowed, backend)
	}

	_, err := app.NewRateLimiter("token-bucket", rdb)
	require.Error(t, err)
}

func TestNewEventBusSinks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("redis://" + mr.Addr())

	bus, closer, err := app.NewEventBus(cfg, dbtest.New(), zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, bus.Notifiers)
	require.NoError(t, closer())

	cfg.Events.Sink = config.EventsSinkAsynq
	bus, closer, err = app.NewEventBus(cfg, dbtest.New(), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, bus.Notifiers, 1)
	require.IsType(t, events.AsynqNotifier{}, bus.Notifiers[0].(events.GuardedNotifier).Next)
	require.NoError(t, closer())

	cfg.Events.Sink = config.EventsSinkKafka
	cfg.Events.KafkaBrokers = []string{"localhost:9092"}
	bus, closer, err = app.NewEventBus(cfg, dbtest.New(), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, bus.Notifiers, 1)
	require.IsType(t, &events.KafkaNotifier{}, bus.Notifiers[0].(events.GuardedNotifier).Next)
	require.NoError(t, closer())

	cfg.Events.Sink = "smoke-signal"
	_, _, err = app.NewEventBus(cfg, dbtest.New(), zerolog.Nop())
	require.Error(t, err)
}

func TestAsynqRedisOptRejectsBadURL(t *testing.T) {
	_, err := app.AsynqRedisOpt("http://not-redis")
	require.Error(t, err)
}

func TestProbesSkipMissingClients(t *testing.T) {
	deps := &app.Dependencies{}
	require.Empty(t, deps.Probes())
	require.NoError(t, deps.Close())
}
