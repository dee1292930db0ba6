package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

var _ repository.ReferrerRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.Referrer) error {
	const q = `
INSERT INTO users (id, referred_by, total_commissions_earned, available_commissions, current_credits)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET referred_by=$2;`
	_, err := execSQL(ctx, r.pool, tx, q, u.UserID, u.ReferredBy, u.TotalCommissionsEarned, u.AvailableCommissions, u.CurrentCredits)
	return mapWriteErr(err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.Referrer, error) {
	const q = `SELECT id, referred_by, total_commissions_earned, available_commissions, current_credits FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	u := &model.Referrer{}
	if err := row.Scan(&u.UserID, &u.ReferredBy, &u.TotalCommissionsEarned, &u.AvailableCommissions, &u.CurrentCredits); err != nil {
		return nil, mapScanErr(err)
	}
	return u, nil
}

func (r *userRepo) AddCommission(ctx context.Context, tx repository.Tx, userID string, amount int64) error {
	const q = `
UPDATE users
   SET total_commissions_earned = total_commissions_earned + $2,
       available_commissions = available_commissions + $2
 WHERE id=$1;`
	return r.increment(ctx, tx, q, userID, amount)
}

func (r *userRepo) AddCredits(ctx context.Context, tx repository.Tx, userID string, points int64) error {
	const q = `UPDATE users SET current_credits = current_credits + $2 WHERE id=$1;`
	return r.increment(ctx, tx, q, userID, points)
}

func (r *userRepo) increment(ctx context.Context, tx repository.Tx, q, userID string, delta int64) error {
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, delta)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
