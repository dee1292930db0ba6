package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/infra/logging"
	"paygate/internal/infra/redis"
	"paygate/internal/usecase"
)

const maxRequestBytes = 1 << 20

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type customerRequest struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	State   string `json:"state"`
	Zip     string `json:"zipCode"`
}

type initiateRequest struct {
	Reference   string           `json:"reference"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Phone       string           `json:"phone"`
	UserID      string           `json:"userId"`
	Description string           `json:"description"`
	Customer    *customerRequest `json:"customer"`
	Metadata    struct {
		ServiceType string `json:"serviceType"`
		Tokens      *int64 `json:"tokens"`
	} `json:"metadata"`
}

func (req initiateRequest) payer() adapter.Payer {
	var p adapter.Payer
	if c := req.Customer; c != nil {
		p = adapter.Payer{
			Name: c.Name, Surname: c.Surname, Email: c.Email, Phone: c.Phone,
			Address: c.Address, City: c.City, Country: c.Country, State: c.State, Zip: c.Zip,
		}
	}
	if req.Phone != "" {
		p.Phone = req.Phone
	}
	return p
}

type initiateResponse struct {
	Success    bool           `json:"success"`
	Reference  string         `json:"reference"`
	PaymentURL string         `json:"paymentUrl,omitempty"`
	PayToken   string         `json:"payToken,omitempty"`
	Initiated  bool           `json:"initiated"`
	Data       map[string]any `json:"data,omitempty"`
}

func initiateKey(r *http.Request) string {
	return redis.InitiateKey(clientIP(r), strings.ToLower(chi.URLParam(r, "provider")))
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: s.tr.T("payment.error.rate_limited"), Code: "rate_limited"})
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.writeInitiateError(w, r, chi.URLParam(r, "provider"), err)
		return
	}
	ctx := logging.WithProvider(r.Context(), string(provider))

	var req initiateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeInitiateError(w, r, string(provider), domain.ErrInvalidArgument)
		return
	}
	ctx = logging.WithReference(ctx, req.Reference)
	if req.UserID != "" {
		ctx = logging.WithUserID(ctx, req.UserID)
	}

	res, err := s.payments.Initiate(ctx, usecase.InitiateCommand{
		Provider:    provider,
		Reference:   req.Reference,
		AmountMinor: req.Amount.IntPart(),
		Currency:    req.Currency,
		UserID:      req.UserID,
		ServiceType: req.Metadata.ServiceType,
		Tokens:      req.Metadata.Tokens,
		Payer:       req.payer(),
		Description: req.Description,
	})
	if err != nil {
		s.writeInitiateError(w, r.WithContext(ctx), string(provider), err)
		return
	}
	writeJSON(w, http.StatusOK, initiateResponse{
		Success:    true,
		Reference:  res.Reference,
		PaymentURL: res.PaymentURL,
		PayToken:   res.PayToken,
		Initiated:  res.Initiated,
		Data:       res.Payload,
	})
}

// writeInitiateError maps the gateway error taxonomy onto HTTP statuses with a
// localized message.
func (s *Server) writeInitiateError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	var (
		reqErr  *domain.GatewayRequestError
		authErr *domain.GatewayAuthError
		netErr  *domain.NetworkError
		cfgErr  *domain.ConfigurationError
	)
	status := http.StatusInternalServerError
	body := errorBody{Error: s.tr.T("payment.error.internal"), Code: "internal"}

	switch {
	case errors.Is(err, domain.ErrUnknownProvider):
		status, body = http.StatusNotFound, errorBody{Error: s.tr.T("payment.error.unknown_provider"), Code: "unknown_provider"}
	case errors.Is(err, domain.ErrInvalidArgument):
		status, body = http.StatusBadRequest, errorBody{Error: s.tr.T("payment.error.invalid"), Code: "invalid_request"}
	case errors.As(err, &reqErr):
		msg := reqErr.Message
		if provider != string(model.ProviderSama) {
			msg = s.tr.T("payment.error.rejected", provider, reqErr.Message)
		}
		status, body = http.StatusBadRequest, errorBody{Error: msg, Code: reqErr.Code}
	case errors.As(err, &authErr):
		status, body = http.StatusBadGateway, errorBody{Error: s.tr.T("payment.error.auth", provider), Code: "gateway_auth"}
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
		if netErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		body = errorBody{Error: s.tr.T("payment.error.network"), Code: "gateway_unreachable"}
	case errors.As(err, &cfgErr):
		body = errorBody{Error: s.tr.T("payment.error.config", provider), Code: "provider_not_configured"}
	}

	if status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Int("status", status).Msg("initiate request failed")
	}
	writeJSON(w, status, body)
}

type verifyRequest struct {
	Reference string `json:"reference"`
	Gateway   string `json:"gateway"`
}

type verifyResponse struct {
	Success bool               `json:"success"`
	Status  model.VerifyStatus `json:"status"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Reference) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: s.tr.T("payment.error.invalid"), Code: "invalid_request"})
		return
	}
	provider, err := model.ParseProvider(req.Gateway)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: s.tr.T("payment.error.unknown_provider"), Code: "unknown_provider"})
		return
	}
	ctx := logging.WithReference(logging.WithProvider(r.Context(), string(provider)), req.Reference)

	st, err := s.payments.Verify(ctx, provider, req.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrVerifyNotSupported) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "verify_not_supported"})
			return
		}
		s.writeInitiateError(w, r.WithContext(ctx), string(provider), err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Success: st == model.VerifyStatusCompleted, Status: st})
}

// handleWebhook always acknowledges so providers stop redelivering; outcomes
// are logged and counted by the webhook use case.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := model.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("provider", string(provider)).Msg("webhook body unreadable")
	} else {
		ctx := logging.WithProvider(r.Context(), string(provider))
		s.webhooks.Handle(ctx, provider, r.Header, body)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type rewardRequest struct {
	RegistrationFee decimal.Decimal `json:"registrationFee"`
}

func (s *Server) handleReferralReward(w http.ResponseWriter, r *http.Request) {
	referralID := chi.URLParam(r, "referralID")
	var req rewardRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "invalid_request"})
			return
		}
	}

	reward, err := s.commissions.ProcessReferralReward(r.Context(), referralID, req.RegistrationFee.IntPart())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "reward": reward})
	case errors.Is(err, domain.ErrReferralNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "referral_not_found"})
	case errors.Is(err, domain.ErrRewardAlreadyGiven):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "reward_already_given"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_request"})
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("referral_id", referralID).Msg("referral reward failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
