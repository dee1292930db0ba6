// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileReport summarizes one pass over stale pending attempts.
type ReconcileReport struct {
	Scanned     int
	Completed   int
	Failed      int
	Pending     int
	Unsupported int
	Errors      int
	Expired     int64
}

type ReconcileUseCase interface {
	// ReconcileStale polls the provider for pending attempts older than the stale
	// threshold and settles them, then fails attempts past the expiry cutoff.
	ReconcileStale(ctx context.Context) (ReconcileReport, error)
	// AuditLedger reports subscriptions whose balance disagrees with their log.
	AuditLedger(ctx context.Context) ([]model.LedgerDrift, error)
}

// ReconcileOptions bound one sweep. ExpireAfter 0 disables expiry.
type ReconcileOptions struct {
	StaleAfter  time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

type reconcileUC struct {
	attempts repository.PaymentAttemptRepository
	subs     repository.SubscriptionRepository
	payments PaymentUseCase
	opts     ReconcileOptions
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	attempts repository.PaymentAttemptRepository,
	subs repository.SubscriptionRepository,
	payments PaymentUseCase,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	return &reconcileUC{
		attempts: attempts,
		subs:     subs,
		payments: payments,
		opts:     opts,
		log:      &l,
	}
}

func (u *reconcileUC) ReconcileStale(ctx context.Context) (ReconcileReport, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.ReconcileStale")()
	var rep ReconcileReport
	now := time.Now()

	providers := u.payments.VerifiableProviders()
	stale, err := u.attempts.ListStalePending(ctx, repository.NoTX, providers, now.Add(-u.opts.StaleAfter), u.opts.BatchSize)
	if err != nil {
		return rep, err
	}
	// attempts the provider still reports as pending move behind unchecked ones
	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	if err := u.attempts.MarkChecked(ctx, repository.NoTX, ids, now); err != nil {
		u.log.Warn().Err(err).Int("attempts", len(ids)).Msg("failed to stamp checked attempts")
	}

	for _, a := range stale {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		status, err := u.payments.VerifyFrom(ctx, a.Method, a.Reference, model.CreditSourceReconciler)
		switch {
		case errors.Is(err, domain.ErrVerifyNotSupported), errors.Is(err, domain.ErrUnknownProvider):
			rep.Unsupported++
			continue
		case err != nil:
			rep.Errors++
			continue
		}
		switch status {
		case model.VerifyStatusCompleted:
			rep.Completed++
		case model.VerifyStatusFailed:
			rep.Failed++
		default:
			rep.Pending++
		}
	}

	if u.opts.ExpireAfter > 0 {
		n, err := u.attempts.ExpirePending(ctx, repository.NoTX, now.Add(-u.opts.ExpireAfter))
		if err != nil {
			u.log.Error().Err(err).Msg("failed to expire abandoned attempts")
		}
		rep.Expired = n
	}

	if counts, err := u.attempts.CountByStatus(ctx, repository.NoTX); err == nil {
		metrics.SetAttemptsByStatus(counts)
	} else {
		u.log.Warn().Err(err).Msg("failed to count attempts by status")
	}

	u.log.Info().
		Int("scanned", rep.Scanned).
		Int("completed", rep.Completed).
		Int("failed", rep.Failed).
		Int("pending", rep.Pending).
		Int("unsupported", rep.Unsupported).
		Int("errors", rep.Errors).
		Int64("expired", rep.Expired).
		Msg("stale attempts reconciled")
	return rep, nil
}

func (u *reconcileUC) AuditLedger(ctx context.Context) ([]model.LedgerDrift, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.AuditLedger")()
	drifts, err := u.subs.ListLedgerDrift(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		u.log.Error().
			Str("subscription_id", d.SubscriptionID).
			Str("user_id", d.UserID).
			Str("service_type", d.ServiceType).
			Int64("balance", d.TokenBalance).
			Int64("ledger_sum", d.LedgerSum).
			Int64("delta", d.Delta()).
			Msg("ledger drift detected")
	}
	metrics.SetLedgerDrift(len(drifts))
	return drifts, nil
}
