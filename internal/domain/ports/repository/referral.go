package repository

import (
	"context"
	"time"

	"paygate/internal/domain/model"
)

type ReferralRepository interface {
	Save(ctx context.Context, tx Tx, r *model.Referral) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Referral, error)
	FindByPair(ctx context.Context, tx Tx, referrerID, referredUserID string) (*model.Referral, error)
	// RecordPayment bumps the generated-commission counter and the payment dates.
	RecordPayment(ctx context.Context, tx Tx, id string, commission int64, pt model.PaymentType, at time.Time) error
}

type CommissionRepository interface {
	// Insert is a no-op returning false when the payment reference already has a commission.
	Insert(ctx context.Context, tx Tx, c *model.Commission) (bool, error)
	ListByReferrer(ctx context.Context, tx Tx, referrerID string) ([]*model.Commission, error)
}

type AffiliateRewardRepository interface {
	// Insert is a no-op returning false when the referral was already rewarded.
	Insert(ctx context.Context, tx Tx, r *model.AffiliateReward) (bool, error)
	FindByReferral(ctx context.Context, tx Tx, referralID string) (*model.AffiliateReward, error)
}
