// File: internal/usecase/commission_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
)

// Compile-time check
var _ CommissionUseCase = (*commissionUC)(nil)

// CommissionUseCase posts referral commissions for purchases and one-time
// registration rewards. Referrer balances only move through atomic increments in
// the same transaction as the row that justifies them.
type CommissionUseCase interface {
	adapter.CreditListener
	// ProcessCommission returns nil without error when the user has no referrer or
	// the payment was already commissioned.
	ProcessCommission(ctx context.Context, userID string, amountMinor int64, paymentType model.PaymentType, reference string) (*model.Commission, error)
	ProcessReferralReward(ctx context.Context, referralID string, registrationFee int64) (*model.AffiliateReward, error)
}

type commissionUC struct {
	users       repository.ReferrerRepository
	referrals   repository.ReferralRepository
	commissions repository.CommissionRepository
	rewards     repository.AffiliateRewardRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewCommissionUseCase(
	users repository.ReferrerRepository,
	referrals repository.ReferralRepository,
	commissions repository.CommissionRepository,
	rewards repository.AffiliateRewardRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *commissionUC {
	l := logger.With().Str("component", "CommissionUC").Logger()
	return &commissionUC{
		users:       users,
		referrals:   referrals,
		commissions: commissions,
		rewards:     rewards,
		tm:          tm,
		log:         &l,
	}
}

// OnCredited posts the commission for a credited purchase. Failures are logged and
// do not touch the credit.
func (u *commissionUC) OnCredited(ctx context.Context, ev model.Credited) {
	if ev.UserID == "" {
		return
	}
	if _, err := u.ProcessCommission(ctx, ev.UserID, ev.AmountMinor, ev.PaymentType, ev.Reference); err != nil {
		u.log.Error().Err(err).
			Str("reference", ev.Reference).
			Str("user_id", ev.UserID).
			Msg("commission posting failed; tokens stay credited")
	}
}

func (u *commissionUC) ProcessCommission(ctx context.Context, userID string, amountMinor int64, paymentType model.PaymentType, reference string) (*model.Commission, error) {
	defer logging.TraceDuration(u.log, "CommissionUC.ProcessCommission")()

	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		metrics.IncCommission("payment", "error")
		return nil, err
	}
	if user.ReferredBy == nil || *user.ReferredBy == "" {
		return nil, nil
	}
	referrerID := *user.ReferredBy

	referral, err := u.referrals.FindByPair(ctx, repository.NoTX, referrerID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("referrer_id", referrerID).Str("user_id", userID).Msg("referred user has no referral row")
			return nil, nil
		}
		metrics.IncCommission("payment", "error")
		return nil, err
	}

	amount := model.CommissionFor(amountMinor)
	if amount <= 0 {
		return nil, nil
	}
	c := &model.Commission{
		ID:               uuid.NewString(),
		ReferralID:       referral.ID,
		ReferrerID:       referrerID,
		ReferredUserID:   userID,
		PaymentReference: reference,
		PaymentAmount:    amountMinor,
		CommissionRate:   model.CommissionRate,
		CommissionAmount: amount,
		PaymentType:      paymentType,
		Status:           model.CommissionStatusPending,
		CreatedAt:        time.Now(),
	}

	var posted bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		inserted, err := u.commissions.Insert(ctx, tx, c)
		if err != nil || !inserted {
			return err
		}
		if err := u.users.AddCommission(ctx, tx, referrerID, amount); err != nil {
			return err
		}
		if err := u.referrals.RecordPayment(ctx, tx, referral.ID, amount, paymentType, c.CreatedAt); err != nil {
			return err
		}
		posted = true
		return nil
	})
	if err != nil {
		metrics.IncCommission("payment", "error")
		return nil, err
	}
	if !posted {
		metrics.IncCommission("payment", "duplicate")
		u.log.Info().Str("reference", reference).Msg("commission already posted")
		return nil, nil
	}

	metrics.IncCommission("payment", "posted")
	metrics.AddCommissionAmount(amount)
	u.log.Info().
		Str("referrer_id", referrerID).
		Str("reference", reference).
		Int64("commission", amount).
		Str("payment_type", string(paymentType)).
		Msg("commission posted")
	return c, nil
}

func (u *commissionUC) ProcessReferralReward(ctx context.Context, referralID string, registrationFee int64) (*model.AffiliateReward, error) {
	defer logging.TraceDuration(u.log, "CommissionUC.ProcessReferralReward")()
	if registrationFee < 0 {
		return nil, domain.ErrInvalidArgument
	}

	referral, err := u.referrals.FindByID(ctx, repository.NoTX, referralID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrReferralNotFound
		}
		return nil, err
	}

	reward := model.NewAffiliateReward(uuid.NewString(), referral, registrationFee)
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		inserted, err := u.rewards.Insert(ctx, tx, reward)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrRewardAlreadyGiven
		}
		switch reward.RewardType {
		case model.RewardTypeCommission:
			return u.users.AddCommission(ctx, tx, reward.ReferrerID, reward.CommissionAmount)
		default:
			return u.users.AddCredits(ctx, tx, reward.ReferrerID, reward.CreditPoints)
		}
	})
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrRewardAlreadyGiven) {
			result = "duplicate"
		}
		metrics.IncCommission("reward", result)
		return nil, err
	}

	metrics.IncCommission("reward", string(reward.RewardType))
	if reward.RewardType == model.RewardTypeCommission {
		metrics.AddCommissionAmount(reward.CommissionAmount)
	}
	u.log.Info().
		Str("referral_id", referralID).
		Str("reward_type", string(reward.RewardType)).
		Int64("commission", reward.CommissionAmount).
		Int64("credit_points", reward.CreditPoints).
		Msg("referral reward granted")
	return reward, nil
}
