package payment

import (
	"context"
	"net/http"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentGateway = (*DisabledGateway)(nil)
	_ adapter.WebhookDecoder = (*DisabledGateway)(nil)
)

// DisabledGateway stands in for a provider whose credentials are missing. Every
// call fails with the ConfigurationError found at startup.
type DisabledGateway struct {
	provider model.Provider
	cause    error
}

func NewDisabledGateway(provider model.Provider, cause error) *DisabledGateway {
	if cause == nil {
		cause = &domain.ConfigurationError{Provider: string(provider), Field: "base_url"}
	}
	return &DisabledGateway{provider: provider, cause: cause}
}

func (g *DisabledGateway) Name() model.Provider { return g.provider }

func (g *DisabledGateway) Initiate(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
	return adapter.InitiationResult{}, g.cause
}

func (g *DisabledGateway) DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error) {
	return model.ConfirmationEvent{}, g.cause
}
