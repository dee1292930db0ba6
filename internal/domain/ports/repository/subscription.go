package repository

import (
	"context"

	"paygate/internal/domain/model"
)

// SubscriptionRepository is the port for per-service token balances.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindActiveByUserAndService(ctx context.Context, tx Tx, userID, serviceType string) (*model.Subscription, error)
	// AddTokens applies delta with a single atomic increment.
	AddTokens(ctx context.Context, tx Tx, id string, delta int64) error
	// ListLedgerDrift returns subscriptions whose balance differs from the sum of their
	// transaction log.
	ListLedgerDrift(ctx context.Context, tx Tx) ([]model.LedgerDrift, error)
}

type TokenTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.TokenTransaction) error
	CountPurchases(ctx context.Context, tx Tx, subscriptionID string) (int, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.TokenTransaction, error)
}
