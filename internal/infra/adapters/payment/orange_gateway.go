// File: internal/infra/adapters/payment/orange_gateway.go
package payment

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/config"
	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/infra/logging"
)

var (
	_ adapter.PaymentGateway   = (*OrangeGateway)(nil)
	_ adapter.WebhookDecoder   = (*OrangeGateway)(nil)
	_ adapter.CallbackVerifier = (*OrangeGateway)(nil)
)

// OrangeGateway implements the two-legged Orange Money flow: a client_credentials
// OAuth exchange followed by webpayment creation.
type OrangeGateway struct {
	cfg    config.OrangeConfig
	client *http.Client
	tokens adapter.TokenCache // optional
	log    *zerolog.Logger
	dev    bool
}

func NewOrangeGateway(cfg config.OrangeConfig, timeout time.Duration, tokens adapter.TokenCache, logger *zerolog.Logger, dev bool) (*OrangeGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid orange base url: %w", err)
	}
	l := logger.With().Str("component", "OrangeGateway").Logger()
	return &OrangeGateway{
		cfg:    cfg,
		client: newHTTPClient(timeout),
		tokens: tokens,
		log:    &l,
		dev:    dev,
	}, nil
}

func (g *OrangeGateway) Name() model.Provider { return model.ProviderOrange }

func (g *OrangeGateway) endpoint(path string) string {
	return strings.TrimRight(g.cfg.BaseURL, "/") + path
}

// currency returns the environment-specific currency code: sandbox only accepts OUV.
func (g *OrangeGateway) currency(requested string) string {
	if g.cfg.Sandbox() {
		return "OUV"
	}
	if requested == "" {
		return "XOF"
	}
	return requested
}

func (g *OrangeGateway) envSegment() string {
	if g.cfg.Sandbox() {
		return "dev"
	}
	return "prod"
}

type orangeTokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached bearer token unless fresh is set.
func (g *OrangeGateway) accessToken(ctx context.Context, fresh bool) (string, bool, error) {
	if !fresh && g.tokens != nil {
		if tok, ok := g.tokens.GetToken(ctx, model.ProviderOrange); ok {
			return tok, true, nil
		}
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := newFormRequest(ctx, g.endpoint("/oauth/v3/token"), form)
	if err != nil {
		return "", false, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(g.cfg.ClientID + ":" + g.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	status, body, err := send(g.client, model.ProviderOrange, "auth", req)
	if err != nil {
		return "", false, err
	}
	if !is2xx(status) {
		return "", false, &domain.GatewayAuthError{Provider: string(model.ProviderOrange), HTTPStatus: status, Body: string(body)}
	}
	var out orangeTokenResponse
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", false, &domain.GatewayAuthError{Provider: string(model.ProviderOrange), HTTPStatus: status, Body: string(body)}
	}
	g.log.Debug().Str("token", logging.Redact(out.AccessToken, g.dev)).Int64("expires_in", out.ExpiresIn).Msg("orange access token issued")
	if g.tokens != nil {
		g.tokens.PutToken(ctx, model.ProviderOrange, out.AccessToken, out.ExpiresIn)
	}
	return out.AccessToken, false, nil
}

type orangeWebpayResponse struct {
	Status      flexString `json:"status"`
	Message     string     `json:"message"`
	Description string     `json:"description"`
	PayToken    string     `json:"pay_token"`
	PaymentURL  string     `json:"payment_url"`
	NotifToken  string     `json:"notif_token"`
}

// Initiate creates a webpayment. A 401 on a cached token triggers one retry with a
// freshly issued token.
func (g *OrangeGateway) Initiate(ctx context.Context, r adapter.InitiationRequest) (adapter.InitiationResult, error) {
	token, cached, err := g.accessToken(ctx, false)
	if err != nil {
		return adapter.InitiationResult{}, err
	}

	status, body, err := g.webpay(ctx, token, r)
	if err == nil && status == http.StatusUnauthorized && cached {
		g.log.Info().Msg("cached orange token rejected, refreshing")
		if token, _, err = g.accessToken(ctx, true); err != nil {
			return adapter.InitiationResult{}, err
		}
		status, body, err = g.webpay(ctx, token, r)
	}
	if err != nil {
		return adapter.InitiationResult{}, err
	}

	var out orangeWebpayResponse
	decodeErr := json.Unmarshal(body, &out)
	if !is2xx(status) || decodeErr != nil || out.PaymentURL == "" {
		msg := out.Message
		if out.Description != "" {
			msg = strings.TrimSpace(msg + " " + out.Description)
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return adapter.InitiationResult{}, &domain.GatewayRequestError{
			Provider:   string(model.ProviderOrange),
			HTTPStatus: status,
			Code:       out.Status.String(),
			Message:    msg,
			Body:       string(body),
		}
	}

	return adapter.InitiationResult{
		Provider:       model.ProviderOrange,
		Reference:      r.Reference,
		PaymentURL:     out.PaymentURL,
		PayToken:       out.PayToken,
		Initiated:      true,
		ProviderStatus: out.Status.String(),
		Message:        out.Message,
		Payload: map[string]any{
			"payment_url": out.PaymentURL,
			"pay_token":   out.PayToken,
			"notif_token": out.NotifToken,
			"status":      out.Status.String(),
		},
	}, nil
}

func (g *OrangeGateway) webpay(ctx context.Context, token string, r adapter.InitiationRequest) (int, []byte, error) {
	payload := map[string]any{
		"merchant_key": g.cfg.MerchantKey,
		"currency":     g.currency(r.Currency),
		"order_id":     r.Reference,
		"amount":       r.AmountMinor,
		"return_url":   g.cfg.ReturnURL,
		"cancel_url":   g.cfg.CancelURL,
		"notif_url":    g.cfg.NotifyURL,
		"lang":         g.cfg.Lang,
		"reference":    truncate(r.Description, 30),
	}
	req, err := newJSONRequest(ctx, g.endpoint("/orange-money-webpay/"+g.envSegment()+"/v1/webpayment"), payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return send(g.client, model.ProviderOrange, "webpay", req)
}

// DecodeWebhook reads an Orange notification {order_id, status, amount, notif_token}.
// Orange reports "SUCCESS"; the comparison is case-insensitive.
func (g *OrangeGateway) DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error) {
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
		Provider:    model.ProviderOrange,
		Reference:   ref,
		UserID:      firstOf(fields, "user_id", "userId"),
		ServiceType: firstOf(fields, "service_type", "serviceType"),
		Tokens:      parseTokens(firstOf(fields, "tokens")),
		AmountMinor: parseAmount(firstOf(fields, "amount")),
		Success:     strings.EqualFold(status, "success"),
		RawStatus:   status,

		CallbackToken: firstOf(fields, "notif_token", "notifToken"),
	}, nil
}

// VerifyCallback checks the notification's notif_token against the one Orange
// returned when the payment was created.
func (g *OrangeGateway) VerifyCallback(ev model.ConfirmationEvent, recorded *model.PaymentAttempt) error {
	if recorded == nil || recorded.Reference != ev.Reference {
		return domain.ErrInvalidSignature
	}
	want, _ := recorded.GatewayPayload["notif_token"].(string)
	if want == "" || ev.CallbackToken == "" {
		return domain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(ev.CallbackToken)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}
