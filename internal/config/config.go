package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Event sinks accepted by EVENTS_SINK.
const (
	EventsSinkNone  = "none"
	EventsSinkAsynq = "asynq"
	EventsSinkKafka = "kafka"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	AdminKey           string
	CurrencyCode       string
	MaxBodyBytes       int64
	HSTSMaxAge         int

	FreeShippingThreshold int64
	DefaultShippingFee    int64
	DefaultShippingMethod string
	ShippingTierCacheTTL  time.Duration

	CartLockTTL        time.Duration
	CartLockMaxWait    time.Duration
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	RateLimitBackend   string

	Events EventsConfig
	Obs    ObsConfig
}

// EventsConfig selects where committed domain events are fanned out to.
type EventsConfig struct {
	Sink              string
	KafkaBrokers      []string
	KafkaTopic        string
	AsynqQueue        string
	AsynqMaxRetry     int
	AsynqRetention    time.Duration
	WorkerConcurrency int
}

// ObsConfig groups logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	EnablePrometheus bool
	EnableTracing    bool
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AdminKey:           strings.TrimSpace(k.String("ADMIN_API_KEY")),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "IDR")),
		MaxBodyBytes:       parseInt64(k.String("HTTP_MAX_BODY_BYTES"), 64<<10),
		HSTSMaxAge:         parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 0),

		FreeShippingThreshold: parseInt64(k.String("FREE_SHIPPING_THRESHOLD"), 500_000),
		DefaultShippingFee:    parseInt64(k.String("DEFAULT_SHIPPING_FEE"), 10_000),
		DefaultShippingMethod: valueOrDefault(k.String("DEFAULT_SHIPPING_METHOD"), "standard"),
		ShippingTierCacheTTL:  parseDuration(k.String("SHIPPING_TIER_CACHE_TTL"), "5m"),

		CartLockTTL:        parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		CartLockMaxWait:    parseDuration(k.String("CART_LOCK_MAX_WAIT"), "5s"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		RateLimitBackend:   strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "ulule")),

		Events: EventsConfig{
			Sink:              strings.ToLower(valueOrDefault(k.String("EVENTS_SINK"), EventsSinkNone)),
			KafkaBrokers:      splitAndTrim(k.String("KAFKA_BROKERS")),
			KafkaTopic:        valueOrDefault(k.String("KAFKA_TOPIC"), "toko.domain-events"),
			AsynqQueue:        valueOrDefault(k.String("ASYNQ_QUEUE"), "events"),
			AsynqMaxRetry:     parseInt(k.String("ASYNQ_MAX_RETRY"), 10),
			AsynqRetention:    parseDuration(k.String("ASYNQ_RETENTION"), "24h"),
			WorkerConcurrency: parseInt(k.String("EVENT_WORKER_CONCURRENCY"), 4),
		},
		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus: parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.Events.Sink {
	case EventsSinkNone, EventsSinkAsynq:
	case EventsSinkKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when EVENTS_SINK=kafka")
		}
	default:
		return nil, fmt.Errorf("unsupported EVENTS_SINK %q", cfg.Events.Sink)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
