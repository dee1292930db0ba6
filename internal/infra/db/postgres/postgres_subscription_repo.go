package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, user_id, service_type, token_balance, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET active=$5, updated_at=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.ServiceType, s.TokenBalance, s.Active, s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT id, user_id, service_type, token_balance, active, created_at, updated_at FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindActiveByUserAndService(ctx context.Context, tx repository.Tx, userID, serviceType string) (*model.Subscription, error) {
	const q = `SELECT id, user_id, service_type, token_balance, active, created_at, updated_at FROM subscriptions WHERE user_id=$1 AND service_type=$2 AND active LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, serviceType)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) AddTokens(ctx context.Context, tx repository.Tx, id string, delta int64) error {
	const q = `UPDATE subscriptions SET token_balance = token_balance + $2, updated_at = NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, delta)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) ListLedgerDrift(ctx context.Context, tx repository.Tx) ([]model.LedgerDrift, error) {
	const q = `
SELECT s.id, s.user_id, s.service_type, s.token_balance, COALESCE(SUM(t.token_amount), 0)
  FROM subscriptions s
  LEFT JOIN token_transactions t ON t.subscription_id = s.id
 GROUP BY s.id, s.user_id, s.service_type, s.token_balance
HAVING s.token_balance <> COALESCE(SUM(t.token_amount), 0)
 ORDER BY s.id;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []model.LedgerDrift
	for rows.Next() {
		var d model.LedgerDrift
		if err := rows.Scan(&d.SubscriptionID, &d.UserID, &d.ServiceType, &d.TokenBalance, &d.LedgerSum); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.ServiceType, &s.TokenBalance, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}
