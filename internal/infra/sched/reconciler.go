package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/infra/metrics"
	"paygate/internal/usecase"
)

const (
	ReconcileLockKey = "lock:reconcile"
	AuditLockKey     = "lock:audit"
)

// Locker is a distributed mutex so only one replica runs a job at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentReconciler settles stale pending attempts by polling their providers.
// It covers lost webhooks and crashes between initiation and confirmation.
type PaymentReconciler struct {
	uc      usecase.ReconcileUseCase
	locker  Locker
	lockTTL time.Duration
	log     *zerolog.Logger
}

// NewPaymentReconciler builds the job. locker may be nil for single-replica setups.
func NewPaymentReconciler(uc usecase.ReconcileUseCase, locker Locker, lockTTL time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &PaymentReconciler{uc: uc, locker: locker, lockTTL: lockTTL, log: &l}
}

func (w *PaymentReconciler) Name() string { return "reconcile" }

func (w *PaymentReconciler) RunOnce(ctx context.Context) error {
	return withLock(ctx, w.locker, ReconcileLockKey, w.lockTTL, w.log, w.Name(), func(ctx context.Context) error {
		rep, err := w.uc.ReconcileStale(ctx)
		if err != nil {
			return err
		}
		if rep.Errors > 0 {
			w.log.Warn().Int("errors", rep.Errors).Int("scanned", rep.Scanned).Msg("some attempts could not be verified")
		}
		return nil
	})
}

// withLock runs fn under key and records the job outcome. A held lock is a
// skip, not a failure.
func withLock(ctx context.Context, locker Locker, key string, ttl time.Duration, log *zerolog.Logger, job string, fn func(context.Context) error) error {
	if locker != nil {
		token, err := locker.TryLock(ctx, key, ttl)
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.IncJobRun(job, "skipped")
			log.Debug().Str("lock", key).Msg("another worker holds the lock; skipping run")
			return nil
		}
		if err != nil {
			metrics.IncJobRun(job, "error")
			return err
		}
		defer func() {
			if err := locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Str("lock", key).Msg("failed to release lock")
			}
		}()
	}

	if err := fn(ctx); err != nil {
		metrics.IncJobRun(job, "error")
		log.Error().Err(err).Msg("job run failed")
		return err
	}
	metrics.IncJobRun(job, "ok")
	return nil
}
