package adapter

import (
	"context"

	"paygate/internal/domain/model"
)

// CreditListener receives every Credited event after the credit has committed.
type CreditListener interface {
	OnCredited(ctx context.Context, ev model.Credited)
}

// EventPublisher ships events to downstream consumers outside this process.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}
