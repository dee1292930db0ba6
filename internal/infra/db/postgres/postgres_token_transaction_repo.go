package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

var _ repository.TokenTransactionRepository = (*tokenTxRepo)(nil)

type tokenTxRepo struct{ pool *pgxpool.Pool }

func NewTokenTransactionRepo(pool *pgxpool.Pool) *tokenTxRepo {
	return &tokenTxRepo{pool: pool}
}

func (r *tokenTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	const q = `
INSERT INTO token_transactions (
  id, subscription_id, type, token_amount, token_value_minor, payment_method, payment_status, payment_reference, created_at
) VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),$9);`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.SubscriptionID, string(t.Type), t.TokenAmount, t.TokenValueMinor,
		string(t.PaymentMethod), string(t.PaymentStatus), t.PaymentReference, t.CreatedAt)
	return mapWriteErr(err)
}

func (r *tokenTxRepo) CountPurchases(ctx context.Context, tx repository.Tx, subscriptionID string) (int, error) {
	const q = `SELECT COUNT(*) FROM token_transactions WHERE subscription_id=$1 AND type='purchase';`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *tokenTxRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.TokenTransaction, error) {
	const q = `
SELECT id, subscription_id, type, token_amount, token_value_minor,
       COALESCE(payment_method,''), COALESCE(payment_status,''), COALESCE(payment_reference,''), created_at
  FROM token_transactions WHERE subscription_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.TokenTransaction
	for rows.Next() {
		t := &model.TokenTransaction{}
		var typ, method, status string
		if err := rows.Scan(&t.ID, &t.SubscriptionID, &typ, &t.TokenAmount, &t.TokenValueMinor, &method, &status, &t.PaymentReference, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		t.Type = model.TokenTransactionType(typ)
		t.PaymentMethod = model.Provider(method)
		t.PaymentStatus = model.PaymentStatus(status)
		out = append(out, t)
	}
	return out, nil
}
