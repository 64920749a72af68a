package events

import (
	"context"

	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/resilience"
)

// GuardedNotifier fails fast with resilience.ErrOpenCircuit while its
// breaker is open.
type GuardedNotifier struct {
	Next    Notifier
	Breaker *resilience.Breaker
}

// Notify implements Notifier.
func (g GuardedNotifier) Notify(ctx context.Context, event db.DomainEvent) error {
	if g.Breaker == nil {
		return g.Next.Notify(ctx, event)
	}
	return g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Next.Notify(ctx, event)
	})
}
