package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-commerce/internal/db"
)

// Envelope is the wire form of a domain event on every sink.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func marshalEnvelope(ev db.DomainEvent) ([]byte, error) {
	payload := json.RawMessage(ev.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal(Envelope{
		ID:          ev.ID,
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Payload:     payload,
		OccurredAt:  ev.OccurredAt,
	})
}

func unmarshalEnvelope(data []byte) (db.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return db.DomainEvent{}, err
	}
	return db.DomainEvent{
		ID:          env.ID,
		Topic:       env.Topic,
		AggregateID: env.AggregateID,
		Payload:     []byte(env.Payload),
		OccurredAt:  env.OccurredAt,
	}, nil
}
