// File: internal/infra/adapters/payment/cinetpay_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/config"
	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentGateway  = (*CinetPayGateway)(nil)
	_ adapter.StatusVerifier  = (*CinetPayGateway)(nil)
	_ adapter.WebhookDecoder  = (*CinetPayGateway)(nil)
	_ adapter.ReferenceIssuer = (*CinetPayGateway)(nil)
)

const (
	cinetPayCreated  = "201"
	cinetPayAccepted = "ACCEPTED"
)

// TOKENS_<serviceType>_<userId>_<unix seconds>
var cinetPayTransID = regexp.MustCompile(`^TOKENS_([a-z]+)_([A-Za-z0-9-]+)_(\d+)$`)

// CinetPayGateway creates hosted checkout sessions.
type CinetPayGateway struct {
	cfg      config.CinetPayConfig
	currency string
	client   *http.Client
	log      *zerolog.Logger
}

func NewCinetPayGateway(cfg config.CinetPayConfig, currency string, timeout time.Duration, logger *zerolog.Logger) (*CinetPayGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if currency == "" {
		currency = "XOF"
	}
	l := logger.With().Str("component", "CinetPayGateway").Logger()
	return &CinetPayGateway{cfg: cfg, currency: currency, client: newHTTPClient(timeout), log: &l}, nil
}

func (g *CinetPayGateway) Name() model.Provider { return model.ProviderCinetPay }

func (g *CinetPayGateway) endpoint(path string) string {
	return strings.TrimRight(g.cfg.BaseURL, "/") + path
}

type cinetPayResponse struct {
	Code        flexString      `json:"code"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

type cinetPayPaymentData struct {
	PaymentToken string `json:"payment_token"`
	PaymentURL   string `json:"payment_url"`
}

type cinetPayCheckData struct {
	Status        string     `json:"status"`
	Amount        flexString `json:"amount"`
	PaymentMethod string     `json:"payment_method"`
}

// IssueReference builds a transaction id carrying the buyer and service so that
// notifications can be credited without an attempt row.
func (g *CinetPayGateway) IssueReference(serviceType, userID string, at time.Time) (string, bool) {
	id := "TOKENS_" + strings.ToLower(serviceType) + "_" + userID + "_" + itoa(at.Unix())
	if _, _, ok := parseCinetPayTransactionID(id); !ok {
		return "", false
	}
	return id, true
}

// parseCinetPayTransactionID extracts service type and user id from a transaction
// id; ok is false unless the whole id matches.
func parseCinetPayTransactionID(id string) (serviceType, userID string, ok bool) {
	m := cinetPayTransID.FindStringSubmatch(id)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func (g *CinetPayGateway) Initiate(ctx context.Context, r adapter.InitiationRequest) (adapter.InitiationResult, error) {
	currency := r.Currency
	if currency == "" {
		currency = g.currency
	}
	payload := map[string]any{
		"apikey":                g.cfg.APIKey,
		"site_id":               g.cfg.SiteID,
		"transaction_id":        r.Reference,
		"amount":                r.AmountMinor,
		"currency":              currency,
		"description":           r.Description,
		"notify_url":            g.cfg.NotifyURL,
		"return_url":            g.cfg.ReturnURL,
		"channels":              g.cfg.Channels,
		"customer_name":         r.Payer.Name,
		"customer_surname":      r.Payer.Surname,
		"customer_email":        r.Payer.Email,
		"customer_phone_number": r.Payer.Phone,
		"customer_address":      r.Payer.Address,
		"customer_city":         r.Payer.City,
		"customer_country":      r.Payer.Country,
		"customer_state":        r.Payer.State,
		"customer_zip_code":     r.Payer.Zip,
		"metadata":              cinetPayMetadata(r),
	}
	req, err := newJSONRequest(ctx, g.endpoint("/v2/payment"), payload)
	if err != nil {
		return adapter.InitiationResult{}, err
	}
	status, body, err := send(g.client, model.ProviderCinetPay, "checkout", req)
	if err != nil {
		return adapter.InitiationResult{}, err
	}

	var out cinetPayResponse
	var data cinetPayPaymentData
	if jsonErr := json.Unmarshal(body, &out); jsonErr == nil && len(out.Data) > 0 {
		_ = json.Unmarshal(out.Data, &data)
	}
	// success is the body code, not the HTTP status
	if out.Code.String() != cinetPayCreated || data.PaymentURL == "" {
		msg := out.Message
		if out.Description != "" {
			msg = strings.TrimSpace(msg + ": " + out.Description)
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return adapter.InitiationResult{}, &domain.GatewayRequestError{
			Provider:   string(model.ProviderCinetPay),
			HTTPStatus: status,
			Code:       out.Code.String(),
			Message:    msg,
			Body:       string(body),
		}
	}

	return adapter.InitiationResult{
		Provider:       model.ProviderCinetPay,
		Reference:      r.Reference,
		PaymentURL:     data.PaymentURL,
		PayToken:       data.PaymentToken,
		Initiated:      true,
		ProviderStatus: out.Code.String(),
		Message:        out.Message,
		Payload: map[string]any{
			"payment_url":   data.PaymentURL,
			"payment_token": data.PaymentToken,
			"code":          out.Code.String(),
		},
	}, nil
}

func cinetPayMetadata(r adapter.InitiationRequest) string {
	meta := map[string]any{"user_id": r.UserID, "service_type": r.ServiceType}
	if r.Tokens != nil {
		meta["tokens"] = *r.Tokens
	}
	b, _ := json.Marshal(meta)
	return string(b)
}

// Verify queries /v2/payment/check.
func (g *CinetPayGateway) Verify(ctx context.Context, reference string) (model.VerifyStatus, error) {
	payload := map[string]any{
		"apikey":         g.cfg.APIKey,
		"site_id":        g.cfg.SiteID,
		"transaction_id": reference,
	}
	req, err := newJSONRequest(ctx, g.endpoint("/v2/payment/check"), payload)
	if err != nil {
		return "", err
	}
	status, body, err := send(g.client, model.ProviderCinetPay, "verify", req)
	if err != nil {
		return "", err
	}
	var out cinetPayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.GatewayRequestError{Provider: string(model.ProviderCinetPay), HTTPStatus: status, Message: "unreadable check response", Body: string(body)}
	}
	var data cinetPayCheckData
	if len(out.Data) > 0 {
		_ = json.Unmarshal(out.Data, &data)
	}
	switch strings.ToUpper(data.Status) {
	case cinetPayAccepted:
		return model.VerifyStatusCompleted, nil
	case "REFUSED", "CANCELED", "CANCELLED":
		return model.VerifyStatusFailed, nil
	default:
		return model.VerifyStatusPending, nil
	}
}

// DecodeWebhook reads a CinetPay notification. When a secret key is configured the
// x-token header must carry a valid HMAC. Identity is taken from the transaction id
// when it follows the TOKENS_ format.
func (g *CinetPayGateway) DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error) {
	fields, err := decodeFields(header, body)
	if err != nil {
		return model.ConfirmationEvent{}, err
	}
	if g.cfg.SecretKey != "" && !VerifyCinetPaySignature(g.cfg.SecretKey, fields, header.Get("x-token")) {
		return model.ConfirmationEvent{}, domain.ErrInvalidSignature
	}

	transID := firstOf(fields, "cpm_trans_id", "transaction_id")
	if transID == "" {
		return model.ConfirmationEvent{}, domain.ErrMalformedWebhook
	}
	status := firstOf(fields, "status", "cpm_status", "cpm_result")

	ev := model.ConfirmationEvent{
		Provider:    model.ProviderCinetPay,
		Reference:   transID,
		AmountMinor: parseAmount(firstOf(fields, "cpm_amount", "amount")),
		Tokens:      parseTokens(firstOf(fields, "tokens")),
		Success:     status == cinetPayAccepted,
		RawStatus:   status,
	}
	if svc, user, ok := parseCinetPayTransactionID(transID); ok {
		ev.ServiceType = svc
		ev.UserID = user
	} else {
		g.log.Debug().Str("trans_id", transID).Msg("transaction id carries no identity")
	}
	return ev, nil
}
