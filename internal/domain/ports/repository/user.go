package repository

import (
	"context"

	"paygate/internal/domain/model"
)

// -----------------------------
// User directory
// -----------------------------

// ReferrerRepository exposes the referral-related columns of the user directory.
// Balance updates are single-statement increments.
type ReferrerRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Referrer) error
	FindByID(ctx context.Context, tx Tx, userID string) (*model.Referrer, error)
	AddCommission(ctx context.Context, tx Tx, userID string, amount int64) error
	AddCredits(ctx context.Context, tx Tx, userID string, points int64) error
}
