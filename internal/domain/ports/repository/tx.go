package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is the storage handle threaded through repository calls. Postgres
// repositories accept a pgx.Tx here and take row locks only when they get one.
type Tx interface{}

// NoTX runs a repository call outside any transaction.
var NoTX Tx

// TransactionManager runs fn in one transaction: everything fn writes through
// tx commits together or not at all.
//
//	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		ok, err := attempts.CompleteIfPending(ctx, tx, a)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
