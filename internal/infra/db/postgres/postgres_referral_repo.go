package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

var (
	_ repository.ReferralRepository        = (*referralRepo)(nil)
	_ repository.CommissionRepository      = (*commissionRepo)(nil)
	_ repository.AffiliateRewardRepository = (*rewardRepo)(nil)
)

// -----------------------------
// Referrals
// -----------------------------

type referralRepo struct{ pool *pgxpool.Pool }

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

const referralColumns = `id, referrer_id, referred_user_id, referral_code, total_commissions_generated, first_payment_date, last_renewal_date, created_at`

func (r *referralRepo) Save(ctx context.Context, tx repository.Tx, ref *model.Referral) error {
	const q = `
INSERT INTO referrals (` + referralColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, ref.ID, ref.ReferrerID, ref.ReferredUserID, ref.ReferralCode, ref.TotalCommissionsGenerated, ref.FirstPaymentDate, ref.LastRenewalDate, ref.CreatedAt)
	return mapWriteErr(err)
}

func (r *referralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanReferral(row)
}

func (r *referralRepo) FindByPair(ctx context.Context, tx repository.Tx, referrerID, referredUserID string) (*model.Referral, error) {
	const q = `SELECT ` + referralColumns + ` FROM referrals WHERE referrer_id=$1 AND referred_user_id=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, referrerID, referredUserID)
	if err != nil {
		return nil, err
	}
	return scanReferral(row)
}

func (r *referralRepo) RecordPayment(ctx context.Context, tx repository.Tx, id string, commission int64, pt model.PaymentType, at time.Time) error {
	q := `UPDATE referrals SET total_commissions_generated = total_commissions_generated + $2, last_renewal_date = $3 WHERE id=$1;`
	if pt == model.PaymentTypeInitial {
		q = `UPDATE referrals SET total_commissions_generated = total_commissions_generated + $2, first_payment_date = COALESCE(first_payment_date, $3) WHERE id=$1;`
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, commission, at)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrReferralNotFound
	}
	return nil
}

func scanReferral(row pgx.Row) (*model.Referral, error) {
	ref := &model.Referral{}
	if err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &ref.ReferralCode, &ref.TotalCommissionsGenerated, &ref.FirstPaymentDate, &ref.LastRenewalDate, &ref.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return ref, nil
}

// -----------------------------
// Commissions
// -----------------------------

type commissionRepo struct{ pool *pgxpool.Pool }

func NewCommissionRepo(pool *pgxpool.Pool) *commissionRepo {
	return &commissionRepo{pool: pool}
}

func (r *commissionRepo) Insert(ctx context.Context, tx repository.Tx, c *model.Commission) (bool, error) {
	const q = `
INSERT INTO commissions (
  id, referral_id, referrer_id, referred_user_id, payment_reference, payment_amount, commission_rate, commission_amount, payment_type, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (payment_reference) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, c.ID, c.ReferralID, c.ReferrerID, c.ReferredUserID, c.PaymentReference, c.PaymentAmount,
		c.CommissionRate.String(), c.CommissionAmount, string(c.PaymentType), string(c.Status), c.CreatedAt)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *commissionRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.Commission, error) {
	const q = `
SELECT id, referral_id, referrer_id, referred_user_id, payment_reference, payment_amount, commission_rate::text, commission_amount, payment_type, status, created_at
  FROM commissions WHERE referrer_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Commission
	for rows.Next() {
		c := &model.Commission{}
		var rate, pt, status string
		if err := rows.Scan(&c.ID, &c.ReferralID, &c.ReferrerID, &c.ReferredUserID, &c.PaymentReference, &c.PaymentAmount, &rate, &c.CommissionAmount, &pt, &status, &c.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		c.CommissionRate, _ = decimal.NewFromString(rate)
		c.PaymentType = model.PaymentType(pt)
		c.Status = model.CommissionStatus(status)
		out = append(out, c)
	}
	return out, nil
}

// -----------------------------
// Affiliate rewards
// -----------------------------

type rewardRepo struct{ pool *pgxpool.Pool }

func NewAffiliateRewardRepo(pool *pgxpool.Pool) *rewardRepo {
	return &rewardRepo{pool: pool}
}

func (r *rewardRepo) Insert(ctx context.Context, tx repository.Tx, rw *model.AffiliateReward) (bool, error) {
	const q = `
INSERT INTO affiliate_rewards (
  id, referral_id, referrer_id, reward_type, credit_points, commission_amount, registration_fee, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (referral_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, rw.ID, rw.ReferralID, rw.ReferrerID, string(rw.RewardType), rw.CreditPoints, rw.CommissionAmount, rw.RegistrationFee, rw.CreatedAt)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *rewardRepo) FindByReferral(ctx context.Context, tx repository.Tx, referralID string) (*model.AffiliateReward, error) {
	const q = `SELECT id, referral_id, referrer_id, reward_type, credit_points, commission_amount, registration_fee, created_at FROM affiliate_rewards WHERE referral_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, referralID)
	if err != nil {
		return nil, err
	}
	rw := &model.AffiliateReward{}
	var typ string
	if err := row.Scan(&rw.ID, &rw.ReferralID, &rw.ReferrerID, &typ, &rw.CreditPoints, &rw.CommissionAmount, &rw.RegistrationFee, &rw.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	rw.RewardType = model.RewardType(typ)
	return rw, nil
}
