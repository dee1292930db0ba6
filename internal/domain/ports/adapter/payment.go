package adapter

import (
	"context"
	"net/http"
	"time"

	"paygate/internal/domain/model"
)

// Payer is the contact profile some providers require at checkout.
type Payer struct {
	Name    string
	Surname string
	Email   string
	Phone   string
	Address string
	City    string
	Country string
	State   string
	Zip     string
}

// InitiationRequest is the provider-agnostic "start a payment" request.
type InitiationRequest struct {
	Reference   string
	AmountMinor int64
	Currency    string
	Payer       Payer
	ServiceType string
	Tokens      *int64
	UserID      string
	Description string
}

// InitiationResult is a normalized provider response. Initiated means a checkout
// session exists, never that money moved.
type InitiationResult struct {
	Provider       model.Provider
	Reference      string
	PaymentURL     string
	PayToken       string
	Initiated      bool
	ProviderStatus string
	Message        string
	Payload        map[string]any
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() model.Provider
	// Initiate creates a checkout session. Expected provider rejections come back as
	// *domain.GatewayRequestError or *domain.GatewayAuthError, transport failures as
	// *domain.NetworkError.
	Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error)
}

// StatusVerifier is implemented by gateways that expose a transaction status query.
type StatusVerifier interface {
	Verify(ctx context.Context, reference string) (model.VerifyStatus, error)
}

// ReferenceIssuer is implemented by gateways that can mint a reference for a
// caller that did not supply one. ok is false when the inputs cannot be encoded.
type ReferenceIssuer interface {
	IssueReference(serviceType, userID string, at time.Time) (ref string, ok bool)
}

// WebhookDecoder turns a provider callback into a ConfirmationEvent. Raw provider
// payloads never travel past this boundary.
type WebhookDecoder interface {
	DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error)
}

// TokenCache stores short-lived provider session tokens.
type TokenCache interface {
	GetToken(ctx context.Context, provider model.Provider) (string, bool)
	PutToken(ctx context.Context, provider model.Provider, token string, ttlSeconds int64)
}

// CallbackVerifier is implemented by gateways whose callbacks carry no signature
// and must be matched against the attempt recorded at initiation. A nil attempt
// means none was recorded.
type CallbackVerifier interface {
	VerifyCallback(ev model.ConfirmationEvent, recorded *model.PaymentAttempt) error
}
