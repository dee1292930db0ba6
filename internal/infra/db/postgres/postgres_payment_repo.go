package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

var _ repository.PaymentAttemptRepository = (*attemptRepo)(nil)

type attemptRepo struct{ pool *pgxpool.Pool }

func NewPaymentAttemptRepo(pool *pgxpool.Pool) *attemptRepo {
	return &attemptRepo{pool: pool}
}

const attemptColumns = `id, reference, user_id, service_type, tokens_requested, amount_minor, currency, method, status, gateway_payload, created_at, completed_at, last_checked_at`

func (r *attemptRepo) Record(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) (bool, error) {
	payload, err := marshalPayload(a.GatewayPayload)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payment_attempts (
  id, reference, user_id, service_type, tokens_requested, amount_minor, currency, method, status, gateway_payload, created_at
) VALUES (
  $1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, COALESCE(NULLIF($7,''),'XOF'), $8, 'pending', $9, $10
) ON CONFLICT (reference) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Reference, a.UserID, a.ServiceType, a.TokensRequested, a.AmountMinor, a.Currency, string(a.Method), payload, a.CreatedAt)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *attemptRepo) FindLatestByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentAttempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE reference=$1 ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, reference)
	if err != nil {
		return nil, err
	}
	return scanAttempt(row)
}

// CompleteIfPending is the single conditional write guarding against double
// credits: the conflict branch only fires while the stored row is still pending.
func (r *attemptRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) (bool, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	const q = `
INSERT INTO payment_attempts (
  id, reference, user_id, service_type, tokens_requested, amount_minor, currency, method, status, created_at, completed_at
) VALUES (
  $1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, COALESCE(NULLIF($7,''),'XOF'), $8, 'completed', NOW(), NOW()
) ON CONFLICT (reference) DO UPDATE SET
  status = 'completed',
  completed_at = NOW(),
  user_id = COALESCE(payment_attempts.user_id, EXCLUDED.user_id),
  service_type = COALESCE(payment_attempts.service_type, EXCLUDED.service_type)
WHERE payment_attempts.status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, a.Reference, a.UserID, a.ServiceType, a.TokensRequested, a.AmountMinor, a.Currency, string(a.Method))
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *attemptRepo) FailIfPending(ctx context.Context, tx repository.Tx, reference string) (bool, error) {
	const q = `UPDATE payment_attempts SET status='failed', completed_at=NOW() WHERE reference=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, reference)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *attemptRepo) ListStalePending(ctx context.Context, tx repository.Tx, providers []model.Provider, olderThan time.Time, limit int) ([]*model.PaymentAttempt, error) {
	if len(providers) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	methods := make([]string, len(providers))
	for i, p := range providers {
		methods[i] = string(p)
	}
	q := `SELECT ` + attemptColumns + ` FROM payment_attempts
WHERE status='pending' AND created_at < $1 AND method = ANY($2)
ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, methods, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *attemptRepo) MarkChecked(ctx context.Context, tx repository.Tx, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE payment_attempts SET last_checked_at=$2 WHERE id = ANY($1);`
	if _, err := execSQL(ctx, r.pool, tx, q, ids, at); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *attemptRepo) ExpirePending(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	const q = `UPDATE payment_attempts SET status='failed', completed_at=NOW() WHERE status='pending' AND created_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, olderThan)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *attemptRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM payment_attempts GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	out := map[model.PaymentStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.PaymentStatus(status)] = n
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (*model.PaymentAttempt, error) {
	a := &model.PaymentAttempt{}
	var userID, serviceType *string
	var method, status string
	var payload []byte
	if err := row.Scan(&a.ID, &a.Reference, &userID, &serviceType, &a.TokensRequested, &a.AmountMinor, &a.Currency, &method, &status, &payload, &a.CreatedAt, &a.CompletedAt, &a.LastCheckedAt); err != nil {
		return nil, mapScanErr(err)
	}
	if userID != nil {
		a.UserID = *userID
	}
	if serviceType != nil {
		a.ServiceType = *serviceType
	}
	a.Method = model.Provider(method)
	a.Status = model.PaymentStatus(status)
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &a.GatewayPayload)
	}
	return a, nil
}

func marshalPayload(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
