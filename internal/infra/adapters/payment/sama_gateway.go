// File: internal/infra/adapters/payment/sama_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/config"
	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/infra/i18n"
	"paygate/internal/infra/logging"
)

var (
	_ adapter.PaymentGateway = (*SamaGateway)(nil)
	_ adapter.StatusVerifier = (*SamaGateway)(nil)
	_ adapter.WebhookDecoder = (*SamaGateway)(nil)
)

const (
	samaAuthOK = 1
	samaPayOK  = 200
)

// SamaGateway talks to SAMA Money: a command/public-key authentication yields a
// session token used as bearer on form-encoded pay and transaction-info calls.
type SamaGateway struct {
	cfg    config.SamaConfig
	client *http.Client
	tokens adapter.TokenCache // optional
	tr     *i18n.Translator
	log    *zerolog.Logger
	dev    bool
}

func NewSamaGateway(cfg config.SamaConfig, timeout time.Duration, tokens adapter.TokenCache, tr *i18n.Translator, logger *zerolog.Logger, dev bool) (*SamaGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, fmt.Errorf("sama gateway requires a translator")
	}
	l := logger.With().Str("component", "SamaGateway").Logger()
	return &SamaGateway{
		cfg:    cfg,
		client: newHTTPClient(timeout),
		tokens: tokens,
		tr:     tr,
		log:    &l,
		dev:    dev,
	}, nil
}

func (g *SamaGateway) Name() model.Provider { return model.ProviderSama }

func (g *SamaGateway) endpoint(path string) string {
	return strings.TrimRight(g.cfg.BaseURL, "/") + path
}

type samaResponse struct {
	Status    flexString      `json:"status"`
	Msg       string          `json:"msg"`
	Message   string          `json:"message"`
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	URL       string          `json:"url"`
	Data      json.RawMessage `json:"data"`
}

func (r samaResponse) text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Msg
}

func (g *SamaGateway) sessionToken(ctx context.Context) (string, error) {
	if g.tokens != nil {
		if tok, ok := g.tokens.GetToken(ctx, model.ProviderSama); ok {
			return tok, nil
		}
	}

	form := url.Values{
		"cmd":        {g.cfg.AuthCmd},
		"public_key": {g.cfg.PublicKey},
	}
	req, err := newFormRequest(ctx, g.endpoint("/auth"), form)
	if err != nil {
		return "", err
	}
	status, body, err := send(g.client, model.ProviderSama, "auth", req)
	if err != nil {
		return "", err
	}

	var out samaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.GatewayAuthError{Provider: string(model.ProviderSama), HTTPStatus: status, Body: string(body)}
	}
	if code, ok := out.Status.Int(); !ok || code != samaAuthOK || out.Token == "" {
		return "", &domain.GatewayAuthError{Provider: string(model.ProviderSama), HTTPStatus: status, Body: string(body)}
	}
	g.log.Debug().Str("token", logging.Redact(out.Token, g.dev)).Msg("sama session token issued")
	if g.tokens != nil && out.ExpiresIn > 0 {
		g.tokens.PutToken(ctx, model.ProviderSama, out.Token, out.ExpiresIn)
	}
	return out.Token, nil
}

// Initiate sends a pay command. The amount is sent as a whole number; the user
// confirms on their phone, so no redirect URL is expected.
func (g *SamaGateway) Initiate(ctx context.Context, r adapter.InitiationRequest) (adapter.InitiationResult, error) {
	phone := strings.TrimSpace(r.Payer.Phone)
	if phone == "" {
		return adapter.InitiationResult{}, fmt.Errorf("%w: phone is required", domain.ErrInvalidArgument)
	}

	token, err := g.sessionToken(ctx)
	if err != nil {
		return adapter.InitiationResult{}, err
	}

	form := url.Values{
		"cmd":          {g.cfg.PayCmd},
		"order_id":     {r.Reference},
		"phone":        {phone},
		"amount":       {strconv.FormatInt(r.AmountMinor, 10)},
		"description":  {r.Description},
		"callback_url": {g.cfg.CallbackURL},
	}
	req, err := newFormRequest(ctx, g.endpoint("/pay"), form)
	if err != nil {
		return adapter.InitiationResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := send(g.client, model.ProviderSama, "pay", req)
	if err != nil {
		return adapter.InitiationResult{}, err
	}

	var out samaResponse
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return adapter.InitiationResult{}, &domain.GatewayRequestError{
			Provider:   string(model.ProviderSama),
			HTTPStatus: status,
			Message:    g.tr.T("sama.error.generic", strconv.Itoa(status)),
			Body:       string(body),
		}
	}
	code, ok := out.Status.Int()
	if !ok || code != samaPayOK {
		if !ok {
			code = status
		}
		g.log.Warn().Int("code", code).Str("reference", r.Reference).Msg("sama pay rejected")
		return adapter.InitiationResult{}, &domain.GatewayRequestError{
			Provider:   string(model.ProviderSama),
			HTTPStatus: status,
			Code:       strconv.Itoa(code),
			Message:    SamaErrorMessage(g.tr, code, out.text()),
			Body:       string(body),
		}
	}

	return adapter.InitiationResult{
		Provider:       model.ProviderSama,
		Reference:      r.Reference,
		PaymentURL:     out.URL,
		Initiated:      true,
		ProviderStatus: out.Status.String(),
		Message:        out.text(),
		Payload: map[string]any{
			"status":  out.Status.String(),
			"message": out.text(),
		},
	}, nil
}

type samaTransactionInfo struct {
	Status flexString `json:"status"`
	Data   struct {
		Status flexString `json:"status"`
	} `json:"data"`
}

// Verify maps the numeric transaction-info status: 1 completed, 0 and 2 pending,
// any other number failed. A missing or non-numeric status is an error, never a
// failure.
func (g *SamaGateway) Verify(ctx context.Context, reference string) (model.VerifyStatus, error) {
	if g.cfg.VerifyCmd == "" {
		return "", &domain.ConfigurationError{Provider: string(model.ProviderSama), Field: "verify_cmd"}
	}
	token, err := g.sessionToken(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"cmd":      {g.cfg.VerifyCmd},
		"order_id": {reference},
	}
	req, err := newFormRequest(ctx, g.endpoint("/transaction-info"), form)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := send(g.client, model.ProviderSama, "verify", req)
	if err != nil {
		return "", err
	}
	if !is2xx(status) {
		return "", &domain.GatewayRequestError{Provider: string(model.ProviderSama), HTTPStatus: status, Message: http.StatusText(status), Body: string(body)}
	}
	var out samaTransactionInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.GatewayRequestError{Provider: string(model.ProviderSama), HTTPStatus: status, Message: "unreadable transaction info", Body: string(body)}
	}
	vs, ok := samaVerifyStatus(out.Data.Status)
	if !ok {
		return "", &domain.GatewayRequestError{
			Provider:   string(model.ProviderSama),
			HTTPStatus: status,
			Code:       out.Status.String(),
			Message:    fmt.Sprintf("unreadable transaction status %q", out.Data.Status.String()),
			Body:       string(body),
		}
	}
	return vs, nil
}

func samaVerifyStatus(raw flexString) (model.VerifyStatus, bool) {
	n, ok := raw.Int()
	if !ok {
		return "", false
	}
	switch n {
	case 1:
		return model.VerifyStatusCompleted, true
	case 0, 2:
		return model.VerifyStatusPending, true
	default:
		return model.VerifyStatusFailed, true
	}
}

// DecodeWebhook reads a SAMA callback. Success sentinels are "completed" and "ok".
func (g *SamaGateway) DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error) {
	fields, err := decodeFields(header, body)
	if err != nil {
		return model.ConfirmationEvent{}, err
	}
	ref := firstOf(fields, "order_id", "reference")
	if ref == "" {
		return model.ConfirmationEvent{}, domain.ErrMalformedWebhook
	}
	status := firstOf(fields, "status")
	return model.ConfirmationEvent{
		Provider:    model.ProviderSama,
		Reference:   ref,
		UserID:      firstOf(fields, "user_id", "userId"),
		ServiceType: firstOf(fields, "service_type", "serviceType"),
		Tokens:      parseTokens(firstOf(fields, "tokens")),
		AmountMinor: parseAmount(firstOf(fields, "amount")),
		Success:     strings.EqualFold(status, "completed") || strings.EqualFold(status, "ok"),
		RawStatus:   status,
	}, nil
}
