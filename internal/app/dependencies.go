package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/health"
	"github.com/noah-isme/toko-commerce/internal/obs"
	"github.com/noah-isme/toko-commerce/internal/ratelimit"
	"github.com/noah-isme/toko-commerce/internal/resilience"
)

// Dependencies enumerates the shared clients built from configuration.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	Store   *db.Store
	Redis   *redis.Client
	Limiter ratelimit.Allower
	Events  *events.Bus

	closers []func() error
}

// Open connects to Postgres and Redis and builds the rate limiter and event
// bus. Call Close when done.
func Open(ctx context.Context, cfg *config.Config, appName string, logger zerolog.Logger) (*Dependencies, error) {
	pool, err := NewPool(ctx, cfg.DatabaseURL, appName)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Config: cfg, DB: pool, Store: db.NewStore(pool)}
	deps.closers = append(deps.closers, func() error { pool.Close(); return nil })

	rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Redis = rdb
	deps.closers = append(deps.closers, rdb.Close)

	deps.Limiter, err = NewRateLimiter(cfg.RateLimitBackend, rdb)
	if err != nil {
		deps.Close()
		return nil, err
	}

	bus, closeBus, err := NewEventBus(cfg, deps.Store, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Events = bus
	deps.closers = append(deps.closers, closeBus)
	return deps, nil
}

// Close releases every client in reverse order of creation.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Probes returns readiness checks for every backing service.
func (d *Dependencies) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{}
	if d.DB != nil {
		probes["db"] = d.DB.Ping
	}
	if d.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return probes
}

// NewPool opens a pgx pool with query tracing enabled.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens an instrumented Redis client.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRateLimiter picks the limiter implementation. "ulule" uses the
// ulule/limiter Redis store, "sliding" the sorted-set sliding window.
func NewRateLimiter(backend string, client *redis.Client) (ratelimit.Allower, error) {
	switch backend {
	case "", "ulule":
		return ratelimit.NewUluleLimiter(client, "toko:ratelimit")
	case "sliding":
		return ratelimit.SlidingWindow{Client: client, Prefix: "toko:rl"}, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", backend)
	}
}

// NewEventBus builds the domain event bus for the configured sink. The
// returned func closes the sink's client.
func NewEventBus(cfg *config.Config, store events.EventStore, logger zerolog.Logger) (*events.Bus, func() error, error) {
	bus := &events.Bus{Store: store}
	noop := func() error { return nil }
	guard := func(n events.Notifier) events.Notifier {
		breaker := resilience.NewBreaker("events:"+cfg.Events.Sink, 5, 0.5, 30*time.Second, logger)
		return events.GuardedNotifier{Next: n, Breaker: breaker}
	}
	switch cfg.Events.Sink {
	case config.EventsSinkAsynq:
		opt, err := AsynqRedisOpt(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := asynq.NewClient(opt)
		bus.Notifiers = append(bus.Notifiers, guard(events.AsynqNotifier{
			Client:    client,
			Queue:     cfg.Events.AsynqQueue,
			MaxRetry:  cfg.Events.AsynqMaxRetry,
			Retention: cfg.Events.AsynqRetention,
		}))
		return bus, client.Close, nil
	case config.EventsSinkKafka:
		notifier := events.NewKafkaNotifier(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), cfg.Events.KafkaTopic)
		bus.Notifiers = append(bus.Notifiers, guard(notifier))
		return bus, notifier.Close, nil
	case config.EventsSinkNone, "":
		return bus, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events sink %q", cfg.Events.Sink)
	}
}

// AsynqRedisOpt converts a redis:// URL into asynq connection options.
func AsynqRedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}
	return opt, nil
}

// RunMigrations exposes migrate for startup routines.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Tracer returns the default OpenTelemetry tracer for instrumentation hooks.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the default OpenTelemetry meter for instrumentation hooks.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
