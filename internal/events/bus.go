package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/db"
)

// EventStore persists domain events. db.Queries and dbtest.Store satisfy it.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error)
}

// Notifier forwards a persisted event to a downstream sink.
type Notifier interface {
	Notify(ctx context.Context, event db.DomainEvent) error
}

// Bus records domain events and forwards each one to every notifier. The
// stored row is the source of truth; notifier delivery is best effort.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit stores the event and then notifies. The stored event is returned even
// when notifiers fail, with their errors joined.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (db.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	if !IsKnownTopic(topic) {
		return db.DomainEvent{}, fmt.Errorf("events: unknown topic %q", topic)
	}
	if aggregateID == uuid.Nil {
		return db.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode %s payload: %w", topic, err)
	}
	ev, err := b.Store.InsertDomainEvent(ctx, db.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     body,
	})
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: persist %s: %w", topic, err)
	}
	return ev, b.notify(ctx, ev)
}

func (b *Bus) notify(ctx context.Context, ev db.DomainEvent) error {
	var errs []error
	for i, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("events: notifier %d (%T): %w", i, n, err))
		}
	}
	return errors.Join(errs...)
}

// encodePayload accepts raw JSON or any marshalable value. nil and empty raw
// payloads become "{}".
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), raw...), nil
}
