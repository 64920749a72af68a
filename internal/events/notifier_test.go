package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/events"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

func sampleEvent() db.DomainEvent {
	return db.DomainEvent{
		ID:          uuid.New(),
		Topic:       events.TopicOrderCreated,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"orderId":"abc","total":226000}`),
		OccurredAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAsynqNotifierRoundTrip(t *testing.T) {
	client := &captureEnqueuer{}
	notifier := events.AsynqNotifier{Client: client, Queue: "events", MaxRetry: 5}
	ev := sampleEvent()

	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Len(t, client.tasks, 1)
	require.Equal(t, "event:order.created", client.tasks[0].Type())

	var delivered db.DomainEvent
	mux := events.NewServeMux(zerolog.Nop(), func(_ context.Context, got db.DomainEvent) error {
		delivered = got
		return nil
	})
	require.NoError(t, mux.ProcessTask(context.Background(), client.tasks[0]))
	require.Equal(t, ev.ID, delivered.ID)
	require.Equal(t, ev.AggregateID, delivered.AggregateID)
	require.True(t, ev.OccurredAt.Equal(delivered.OccurredAt))
	require.JSONEq(t, string(ev.Payload), string(delivered.Payload))
}

func TestAsynqNotifierErrors(t *testing.T) {
	require.Error(t, events.AsynqNotifier{}.Notify(context.Background(), sampleEvent()))

	client := &captureEnqueuer{err: errors.New("redis down")}
	require.ErrorContains(t, events.AsynqNotifier{Client: client}.Notify(context.Background(), sampleEvent()), "redis down")

	client = &captureEnqueuer{err: asynq.ErrTaskIDConflict}
	require.NoError(t, events.AsynqNotifier{Client: client}.Notify(context.Background(), sampleEvent()))
}

func TestDecodeTaskRejectsForeignTypes(t *testing.T) {
	_, err := events.DecodeTask(asynq.NewTask("email:send", nil))
	require.Error(t, err)

	_, err = events.DecodeTask(asynq.NewTask(events.TaskType(events.TopicOrderCreated), []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaNotifierPublishesKeyedMessage(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04, 0x05},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	writer := &captureWriter{}
	notifier := events.NewKafkaNotifier(writer, "commerce.events")
	ev := sampleEvent()
	require.NoError(t, notifier.Notify(ctx, ev))
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, ev.AggregateID.String(), string(msg.Key))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	require.Equal(t, ev.ID, env.ID)
	require.Equal(t, events.TopicOrderCreated, env.Topic)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TopicOrderCreated, headers["event-topic"])
	require.Contains(t, headers["traceparent"], sc.TraceID().String())

	require.NoError(t, notifier.Close())
	require.True(t, writer.closed)
}
