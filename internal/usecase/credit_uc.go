// File: internal/usecase/credit_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
)

// Compile-time check
var _ CreditUseCase = (*creditUC)(nil)

// CreditUseCase turns a confirmed payment into a token balance mutation. It is the
// only writer of purchase ledger lines and credits each reference at most once.
type CreditUseCase interface {
	// Credit never fails on business or storage problems; those come back as a
	// Skipped result. The error is non-nil only when ctx is done.
	Credit(ctx context.Context, in model.CreditInput) (model.CreditResult, error)
	// ResolveAttempt returns what the attempt ledger knows about reference.
	ResolveAttempt(ctx context.Context, reference string) model.AttemptResolution
}

type creditUC struct {
	attempts  repository.PaymentAttemptRepository
	subs      repository.SubscriptionRepository
	txns      repository.TokenTransactionRepository
	tm        repository.TransactionManager
	listeners []adapter.CreditListener
	log       *zerolog.Logger
}

func NewCreditUseCase(
	attempts repository.PaymentAttemptRepository,
	subs repository.SubscriptionRepository,
	txns repository.TokenTransactionRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
	listeners ...adapter.CreditListener,
) *creditUC {
	l := logger.With().Str("component", "CreditUC").Logger()
	return &creditUC{
		attempts:  attempts,
		subs:      subs,
		txns:      txns,
		tm:        tm,
		listeners: listeners,
		log:       &l,
	}
}

// skipError aborts the credit transaction with a known reason.
type skipError struct{ reason model.SkipReason }

func (e *skipError) Error() string { return "credit skipped: " + string(e.reason) }

func (u *creditUC) ResolveAttempt(ctx context.Context, reference string) model.AttemptResolution {
	if reference == "" {
		return model.AttemptResolution{}
	}
	a, err := u.attempts.FindLatestByReference(ctx, repository.NoTX, reference)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Err(err).Str("reference", reference).Msg("attempt lookup failed")
		}
		return model.AttemptResolution{}
	}
	return model.AttemptResolution{
		UserID:      a.UserID,
		ServiceType: a.ServiceType,
		Tokens:      a.TokensRequested,
		AmountMinor: a.AmountMinor,
		Method:      a.Method,
		Found:       true,
	}
}

// fill completes the fields the confirmation did not carry from the attempt ledger.
func (u *creditUC) fill(ctx context.Context, in model.CreditInput) model.CreditInput {
	if in.UserID != "" && in.ServiceType != "" && (in.Tokens != nil || in.AmountMinor > 0) && in.Method != "" {
		return in
	}
	res := u.ResolveAttempt(ctx, in.Reference)
	if !res.Found {
		return in
	}
	if in.UserID == "" {
		in.UserID = res.UserID
	}
	if in.ServiceType == "" {
		in.ServiceType = res.ServiceType
	}
	if in.Tokens == nil {
		in.Tokens = res.Tokens
	}
	if in.AmountMinor <= 0 {
		in.AmountMinor = res.AmountMinor
	}
	if in.Method == "" {
		in.Method = res.Method
	}
	return in
}

func (u *creditUC) Credit(ctx context.Context, in model.CreditInput) (model.CreditResult, error) {
	defer logging.TraceDuration(u.log, "CreditUC.Credit")()
	if err := ctx.Err(); err != nil {
		return model.Skipped(model.SkipStorageError, in.Reference), err
	}

	in = u.fill(ctx, in)
	log := u.log.With().
		Str("reference", in.Reference).
		Str("user_id", in.UserID).
		Str("service_type", in.ServiceType).
		Str("source", string(in.Source)).
		Logger()

	if in.UserID == "" || in.ServiceType == "" {
		log.Info().Msg("credit skipped: identity unresolved")
		return u.finish(ctx, in, model.Skipped(model.SkipUnresolvedIdentity, in.Reference)), nil
	}

	res := model.CreditResult{Status: model.CreditStatusCredited, Reference: in.Reference}
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindActiveByUserAndService(ctx, tx, in.UserID, in.ServiceType)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &skipError{model.SkipNoSubscription}
			}
			return err
		}

		value := model.TokenValue(in.ServiceType)
		if value <= 0 {
			return &skipError{model.SkipInvalidTokenValue}
		}
		tokens := model.ComputeTokens(in.AmountMinor, value)
		if in.Tokens != nil {
			tokens = *in.Tokens
		}
		if tokens <= 0 {
			return &skipError{model.SkipZeroTokens}
		}

		// The conditional transition is the idempotency guard: only the first
		// delivery for a reference moves it out of pending.
		if in.Reference != "" {
			ok, err := u.attempts.CompleteIfPending(ctx, tx, &model.PaymentAttempt{
				ID:              uuid.NewString(),
				Reference:       in.Reference,
				UserID:          in.UserID,
				ServiceType:     in.ServiceType,
				TokensRequested: in.Tokens,
				AmountMinor:     in.AmountMinor,
				Method:          in.Method,
			})
			if err != nil {
				return err
			}
			if !ok {
				return &skipError{model.SkipAlreadyProcessed}
			}
		}

		purchases, err := u.txns.CountPurchases(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		paymentType := model.PaymentTypeRenewal
		if purchases == 0 {
			paymentType = model.PaymentTypeInitial
		}

		if err := u.txns.Save(ctx, tx, &model.TokenTransaction{
			ID:               uuid.NewString(),
			SubscriptionID:   sub.ID,
			Type:             model.TokenTransactionPurchase,
			TokenAmount:      tokens,
			TokenValueMinor:  value,
			PaymentMethod:    in.Method,
			PaymentStatus:    model.PaymentStatusCompleted,
			PaymentReference: in.Reference,
			CreatedAt:        time.Now(),
		}); err != nil {
			return err
		}
		if err := u.subs.AddTokens(ctx, tx, sub.ID, tokens); err != nil {
			return err
		}

		res.SubscriptionID = sub.ID
		res.Tokens = tokens
		res.TokenValue = value
		res.PaymentType = paymentType
		return nil
	})

	if err != nil {
		var skip *skipError
		switch {
		case errors.As(err, &skip):
			ev := log.Info()
			if skip.reason == model.SkipInvalidTokenValue {
				ev = log.Error()
			}
			ev.Str("reason", string(skip.reason)).Msg("credit skipped")
			return u.finish(ctx, in, model.Skipped(skip.reason, in.Reference)), nil
		case ctx.Err() != nil:
			return model.Skipped(model.SkipStorageError, in.Reference), ctx.Err()
		default:
			log.Error().Err(err).Int64("amount", in.AmountMinor).Msg("credit failed; rolled back")
			return u.finish(ctx, in, model.Skipped(model.SkipStorageError, in.Reference)), nil
		}
	}

	log.Info().Int64("tokens", res.Tokens).Str("payment_type", string(res.PaymentType)).Msg("tokens credited")
	return u.finish(ctx, in, res), nil
}

// finish records metrics and, for a credit, notifies listeners outside the
// committed transaction.
func (u *creditUC) finish(ctx context.Context, in model.CreditInput, res model.CreditResult) model.CreditResult {
	metrics.ObserveCredit(res, in.Source, in.ServiceType)
	if !res.IsCredited() {
		return res
	}
	metrics.AddPaymentRevenue(string(in.Method), in.AmountMinor)
	ev := model.Credited{
		EventID:     ulid.Make().String(),
		Reference:   in.Reference,
		UserID:      in.UserID,
		ServiceType: in.ServiceType,
		Tokens:      res.Tokens,
		AmountMinor: in.AmountMinor,
		Method:      in.Method,
		PaymentType: res.PaymentType,
		Source:      in.Source,
		CreditedAt:  time.Now().UTC(),
	}
	// listeners outlive a caller that hangs up after the commit
	lctx := context.WithoutCancel(ctx)
	for _, l := range u.listeners {
		l.OnCredited(lctx, ev)
	}
	return res
}
