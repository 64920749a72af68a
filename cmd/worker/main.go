package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/toko-commerce/internal/app"
	"github.com/noah-isme/toko-commerce/internal/config"
	"github.com/noah-isme/toko-commerce/internal/events"
	"github.com/noah-isme/toko-commerce/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()

	if cfg.Obs.EnablePrometheus {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}
	if cfg.Obs.EnableTracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "toko-worker",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisOpt, err := app.AsynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	counter, err := app.Meter("toko-worker").Int64Counter("events_consumed",
		metric.WithDescription("Domain events consumed by the worker."))
	if err != nil {
		logger.Error().Err(err).Msg("create consumed counter")
	}
	c := consumer{
		logger:   logger,
		tracer:   app.Tracer("toko-worker"),
		consumed: counter,
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		relay := events.NewKafkaNotifier(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), cfg.Events.KafkaTopic)
		defer func() {
			if err := relay.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka relay")
			}
		}()
		c.relay = relay
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Events.WorkerConcurrency,
		Queues:      map[string]int{cfg.Events.AsynqQueue: 1},
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("event task failed")
		}),
	})

	logger.Info().Str("queue", cfg.Events.AsynqQueue).Bool("kafka_relay", c.relay != nil).Msg("worker starting")
	if err := srv.Run(events.NewServeMux(logger, c.handle)); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}
