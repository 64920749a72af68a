package main

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/events"
)

// consumer records every delivered domain event and, when a relay is set,
// forwards it to a downstream sink such as Kafka.
type consumer struct {
	logger   zerolog.Logger
	tracer   trace.Tracer
	consumed metric.Int64Counter
	relay    events.Notifier
}

func (c consumer) handle(ctx context.Context, ev db.DomainEvent) error {
	ctx, span := c.tracer.Start(ctx, "events.consume "+ev.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	attrs := []attribute.KeyValue{
		attribute.String("event.topic", ev.Topic),
		attribute.String("event.id", ev.ID.String()),
	}
	span.SetAttributes(attrs...)
	if c.consumed != nil {
		c.consumed.Add(ctx, 1, metric.WithAttributes(attribute.String("event.topic", ev.Topic)))
	}

	c.logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		RawJSON("payload", ev.Payload).
		Msg("domain event consumed")

	if c.relay == nil {
		return nil
	}
	if err := c.relay.Notify(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		c.logger.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("relay domain event")
		return err
	}
	return nil
}
