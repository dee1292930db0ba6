// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
	"paygate/internal/infra/i18n"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// InitiateCommand is a provider-agnostic payment request.
type InitiateCommand struct {
	Provider    model.Provider
	Reference   string
	AmountMinor int64
	Currency    string
	UserID      string
	ServiceType string
	Tokens      *int64
	Payer       adapter.Payer
	Description string
}

type PaymentUseCase interface {
	// Initiate opens a checkout session with the provider. A successful result never
	// credits tokens; crediting only happens on confirmation.
	Initiate(ctx context.Context, cmd InitiateCommand) (adapter.InitiationResult, error)
	// Verify queries the provider for reference and reports its status.
	Verify(ctx context.Context, provider model.Provider, reference string) (model.VerifyStatus, error)
	// VerifyFrom is Verify on behalf of source; the reconciler always settles.
	VerifyFrom(ctx context.Context, provider model.Provider, reference string, source model.CreditSource) (model.VerifyStatus, error)
	Providers() []model.Provider
	// VerifiableProviders lists the providers that answer status queries.
	VerifiableProviders() []model.Provider
}

// PaymentOptions tune the initiation retry policy and verify semantics.
type PaymentOptions struct {
	RetryAttempts  int
	RetryBackoff   time.Duration
	Currency       string
	CreditOnVerify bool
}

type paymentUC struct {
	gateways map[model.Provider]adapter.PaymentGateway
	attempts repository.PaymentAttemptRepository
	credits  CreditUseCase
	tr       *i18n.Translator
	opts     PaymentOptions
	log      *zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPaymentUseCase(
	gateways []adapter.PaymentGateway,
	attempts repository.PaymentAttemptRepository,
	credits CreditUseCase,
	tr *i18n.Translator,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	byName := make(map[model.Provider]adapter.PaymentGateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	if opts.Currency == "" {
		opts.Currency = "XOF"
	}
	return &paymentUC{
		gateways: byName,
		attempts: attempts,
		credits:  credits,
		tr:       tr,
		opts:     opts,
		log:      &l,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (u *paymentUC) Providers() []model.Provider {
	out := make([]model.Provider, 0, len(u.gateways))
	for p := range u.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (u *paymentUC) VerifiableProviders() []model.Provider {
	var out []model.Provider
	for _, p := range u.Providers() {
		if _, ok := u.gateways[p].(adapter.StatusVerifier); ok {
			out = append(out, p)
		}
	}
	return out
}

func (u *paymentUC) gateway(p model.Provider) (adapter.PaymentGateway, error) {
	g, ok := u.gateways[p]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return g, nil
}

func (u *paymentUC) Initiate(ctx context.Context, cmd InitiateCommand) (adapter.InitiationResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	if cmd.AmountMinor <= 0 {
		return adapter.InitiationResult{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	g, err := u.gateway(cmd.Provider)
	if err != nil {
		return adapter.InitiationResult{}, err
	}
	cmd.Reference = strings.TrimSpace(cmd.Reference)
	if cmd.Reference == "" {
		if issuer, ok := g.(adapter.ReferenceIssuer); ok {
			cmd.Reference, _ = issuer.IssueReference(cmd.ServiceType, cmd.UserID, time.Now())
		}
	}
	if cmd.Reference == "" {
		return adapter.InitiationResult{}, fmt.Errorf("%w: reference is required", domain.ErrInvalidArgument)
	}
	if cmd.Currency == "" {
		cmd.Currency = u.opts.Currency
	}
	if cmd.Description == "" && u.tr != nil {
		var n int64
		if cmd.Tokens != nil {
			n = *cmd.Tokens
		}
		cmd.Description = u.tr.T("payment.description", n, cmd.ServiceType)
	}

	log := u.log.With().Str("provider", string(cmd.Provider)).Str("reference", cmd.Reference).Logger()
	req := adapter.InitiationRequest{
		Reference:   cmd.Reference,
		AmountMinor: cmd.AmountMinor,
		Currency:    cmd.Currency,
		Payer:       cmd.Payer,
		ServiceType: cmd.ServiceType,
		Tokens:      cmd.Tokens,
		UserID:      cmd.UserID,
		Description: cmd.Description,
	}

	var res adapter.InitiationResult
	for attempt := 0; ; attempt++ {
		res, err = g.Initiate(ctx, req)
		if err == nil || !domain.IsRetryable(err) || attempt >= u.opts.RetryAttempts {
			break
		}
		metrics.IncPaymentRetry(string(cmd.Provider))
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("gateway unreachable; retrying")
		if serr := u.sleep(ctx, u.opts.RetryBackoff*time.Duration(attempt+1)); serr != nil {
			break
		}
	}

	if err != nil {
		var ne *domain.NetworkError
		if errors.As(err, &ne) && ne.Timeout {
			// the provider may hold the session; keep a hint for reconciliation
			u.record(ctx, &log, cmd, nil)
		}
		metrics.IncPayment(string(cmd.Provider), outcomeOf(err))
		log.Error().Err(err).Msg("payment initiation failed")
		return adapter.InitiationResult{}, err
	}

	u.record(ctx, &log, cmd, res.Payload)
	metrics.IncPayment(string(cmd.Provider), "initiated")
	log.Info().Bool("redirect", res.PaymentURL != "").Msg("payment initiated")
	return res, nil
}

// record stores the attempt. Failures are logged and never surfaced: the provider
// call already happened.
func (u *paymentUC) record(ctx context.Context, log *zerolog.Logger, cmd InitiateCommand, payload map[string]any) {
	a, err := model.NewPaymentAttempt(uuid.NewString(), cmd.Reference, cmd.UserID, cmd.ServiceType, cmd.Tokens, cmd.AmountMinor, cmd.Currency, cmd.Provider)
	if err != nil {
		log.Warn().Err(err).Msg("attempt not recorded")
		return
	}
	a.GatewayPayload = payload
	inserted, err := u.attempts.Record(ctx, repository.NoTX, a)
	if err != nil {
		metrics.IncAttemptRecordFailure()
		log.Error().Err(err).Msg("failed to record payment attempt")
		return
	}
	if !inserted {
		log.Info().Msg("attempt already recorded for reference")
	}
}

func outcomeOf(err error) string {
	var (
		authErr *domain.GatewayAuthError
		reqErr  *domain.GatewayRequestError
		netErr  *domain.NetworkError
		cfgErr  *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &reqErr):
		return "rejected"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &cfgErr):
		return "config_error"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

func (u *paymentUC) Verify(ctx context.Context, provider model.Provider, reference string) (model.VerifyStatus, error) {
	return u.VerifyFrom(ctx, provider, reference, model.CreditSourceVerify)
}

func (u *paymentUC) VerifyFrom(ctx context.Context, provider model.Provider, reference string, source model.CreditSource) (model.VerifyStatus, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Verify")()
	started := time.Now()

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", fmt.Errorf("%w: reference is required", domain.ErrInvalidArgument)
	}
	g, err := u.gateway(provider)
	if err != nil {
		return "", err
	}
	verifier, ok := g.(adapter.StatusVerifier)
	if !ok {
		return "", domain.ErrVerifyNotSupported
	}

	status, err := verifier.Verify(ctx, reference)
	label := string(status)
	if err != nil {
		label = "error"
	}
	metrics.ObserveVerify(string(provider), label, started)
	if err != nil {
		u.log.Warn().Err(err).Str("provider", string(provider)).Str("reference", reference).Msg("status query failed")
		return "", err
	}

	switch status {
	case model.VerifyStatusCompleted:
		if source == model.CreditSourceReconciler || u.opts.CreditOnVerify {
			res, cerr := u.credits.Credit(ctx, model.CreditInput{Reference: reference, Method: provider, Source: source})
			if cerr != nil {
				return status, cerr
			}
			u.log.Info().Str("reference", reference).Str("credit", string(res.Status)).Str("reason", string(res.Reason)).Msg("verified payment settled")
		}
	case model.VerifyStatusFailed:
		if _, ferr := u.attempts.FailIfPending(ctx, repository.NoTX, reference); ferr != nil {
			u.log.Error().Err(ferr).Str("reference", reference).Msg("failed to mark attempt failed")
		}
	}
	return status, nil
}
