package repository

import (
	"context"
	"time"

	"paygate/internal/domain/model"
)

// -----------------------------
// Payment attempts
// -----------------------------

type PaymentAttemptRepository interface {
	// Record inserts a pending attempt; an existing reference is left untouched.
	Record(ctx context.Context, tx Tx, a *model.PaymentAttempt) (inserted bool, err error)
	FindLatestByReference(ctx context.Context, tx Tx, reference string) (*model.PaymentAttempt, error)
	// CompleteIfPending moves the attempt for a.Reference to completed, creating it
	// when absent. Returns false when the attempt was already completed or failed.
	CompleteIfPending(ctx context.Context, tx Tx, a *model.PaymentAttempt) (bool, error)
	FailIfPending(ctx context.Context, tx Tx, reference string) (bool, error)
	// ListStalePending returns pending attempts of providers created before
	// olderThan, least recently checked first.
	ListStalePending(ctx context.Context, tx Tx, providers []model.Provider, olderThan time.Time, limit int) ([]*model.PaymentAttempt, error)
	MarkChecked(ctx context.Context, tx Tx, ids []string, at time.Time) error
	// ExpirePending fails every attempt still pending that was created before olderThan.
	ExpirePending(ctx context.Context, tx Tx, olderThan time.Time) (int64, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.PaymentStatus]int, error)
}
