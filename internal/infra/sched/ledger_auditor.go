package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/usecase"
)

// LedgerAuditor compares subscription balances with the sum of their token
// transactions and reports drift.
type LedgerAuditor struct {
	uc      usecase.ReconcileUseCase
	locker  Locker
	lockTTL time.Duration
	log     *zerolog.Logger
}

func NewLedgerAuditor(uc usecase.ReconcileUseCase, locker Locker, lockTTL time.Duration, logger *zerolog.Logger) *LedgerAuditor {
	l := logger.With().Str("component", "LedgerAuditor").Logger()
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &LedgerAuditor{uc: uc, locker: locker, lockTTL: lockTTL, log: &l}
}

func (a *LedgerAuditor) Name() string { return "audit" }

func (a *LedgerAuditor) RunOnce(ctx context.Context) error {
	return withLock(ctx, a.locker, AuditLockKey, a.lockTTL, a.log, a.Name(), func(ctx context.Context) error {
		drifts, err := a.uc.AuditLedger(ctx)
		if err != nil {
			return err
		}
		if len(drifts) == 0 {
			a.log.Info().Msg("ledger consistent")
		}
		return nil
	})
}
