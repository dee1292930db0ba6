// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookOutcome describes what happened to one delivery. Callers acknowledge the
// delivery regardless of its content.
type WebhookOutcome struct {
	Provider  model.Provider
	Reference string
	Accepted  bool // decoded and carried a success sentinel
	Credit    *model.CreditResult
	Err       error
}

type WebhookUseCase interface {
	Handle(ctx context.Context, provider model.Provider, header http.Header, body []byte) WebhookOutcome
}

type webhookUC struct {
	decoders  map[model.Provider]adapter.WebhookDecoder
	verifiers map[model.Provider]adapter.CallbackVerifier
	attempts  repository.PaymentAttemptRepository
	credits   CreditUseCase
	log       *zerolog.Logger
}

// NewWebhookUseCase picks the gateways that can decode callbacks.
func NewWebhookUseCase(gateways []adapter.PaymentGateway, attempts repository.PaymentAttemptRepository, credits CreditUseCase, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	decoders := make(map[model.Provider]adapter.WebhookDecoder)
	verifiers := make(map[model.Provider]adapter.CallbackVerifier)
	for _, g := range gateways {
		if d, ok := g.(adapter.WebhookDecoder); ok {
			decoders[g.Name()] = d
		}
		if v, ok := g.(adapter.CallbackVerifier); ok {
			verifiers[g.Name()] = v
		}
	}
	return &webhookUC{decoders: decoders, verifiers: verifiers, attempts: attempts, credits: credits, log: &l}
}

func (u *webhookUC) Handle(ctx context.Context, provider model.Provider, header http.Header, body []byte) WebhookOutcome {
	defer logging.TraceDuration(u.log, "WebhookUC.Handle")()
	out := WebhookOutcome{Provider: provider}

	d, ok := u.decoders[provider]
	if !ok {
		out.Err = domain.ErrUnknownProvider
		metrics.IncWebhook(string(provider), "unknown_provider")
		u.log.Warn().Str("provider", string(provider)).Msg("webhook for unknown provider")
		return out
	}

	ev, err := d.DecodeWebhook(header, body)
	if err != nil {
		out.Err = err
		result := "malformed"
		if errors.Is(err, domain.ErrInvalidSignature) {
			result = "invalid_signature"
		}
		metrics.IncWebhook(string(provider), result)
		u.log.Warn().Err(err).Str("provider", string(provider)).Int("bytes", len(body)).Msg("webhook rejected")
		return out
	}
	out.Reference = ev.Reference

	log := u.log.With().Str("provider", string(provider)).Str("reference", ev.Reference).Logger()
	if !ev.Success {
		metrics.IncWebhook(string(provider), "not_successful")
		log.Info().Str("status", ev.RawStatus).Msg("webhook without success status ignored")
		return out
	}

	if v, ok := u.verifiers[provider]; ok {
		if err := u.matchRecorded(ctx, v, &ev); err != nil {
			out.Err = err
			result := "error"
			if errors.Is(err, domain.ErrInvalidSignature) {
				result = "invalid_signature"
			}
			metrics.IncWebhook(string(provider), result)
			log.Warn().Err(err).Msg("webhook does not match the recorded attempt")
			return out
		}
	}
	out.Accepted = true

	res, err := u.credits.Credit(ctx, model.CreditInput{
		Reference:   ev.Reference,
		UserID:      ev.UserID,
		ServiceType: ev.ServiceType,
		Tokens:      ev.Tokens,
		AmountMinor: ev.AmountMinor,
		Method:      provider,
		Source:      model.CreditSourceWebhook,
	})
	if err != nil {
		out.Err = err
		metrics.IncWebhook(string(provider), "error")
		log.Error().Err(err).Msg("webhook credit interrupted")
		return out
	}
	out.Credit = &res
	metrics.IncWebhook(string(provider), string(res.Status))
	return out
}

// matchRecorded checks ev against the attempt recorded at initiation. The recorded
// identity and amount replace whatever the callback claimed.
func (u *webhookUC) matchRecorded(ctx context.Context, v adapter.CallbackVerifier, ev *model.ConfirmationEvent) error {
	a, err := u.attempts.FindLatestByReference(ctx, repository.NoTX, ev.Reference)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := v.VerifyCallback(*ev, a); err != nil {
		return err
	}
	if a.UserID != "" {
		ev.UserID = a.UserID
	}
	if a.ServiceType != "" {
		ev.ServiceType = a.ServiceType
	}
	ev.Tokens = a.TokensRequested
	if a.AmountMinor > 0 {
		ev.AmountMinor = a.AmountMinor
	}
	return nil
}
