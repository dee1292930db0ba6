package model

import (
	"strings"
	"time"

	"paygate/internal/domain"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderOrange   Provider = "orange"   // OAuth + webpay
	ProviderSama     Provider = "sama"     // token auth + form-encoded pay
	ProviderCinetPay Provider = "cinetpay" // hosted checkout
)

// ParseProvider normalizes a provider name taken from a URL or request body.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOrange:
		return ProviderOrange, nil
	case ProviderSama:
		return ProviderSama, nil
	case ProviderCinetPay:
		return ProviderCinetPay, nil
	}
	return "", domain.ErrUnknownProvider
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // checkout created; awaiting confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // confirmed and tokens credited
	PaymentStatusFailed    PaymentStatus = "failed"    // provider reported a definitive failure
)

// PaymentAttempt is one recorded intention to pay, keyed by the caller's reference.
// The pending -> completed transition happens at most once per reference and is the
// only place tokens get credited.
type PaymentAttempt struct {
	ID              string
	Reference       string
	UserID          string // may be empty at creation
	ServiceType     string
	TokensRequested *int64
	AmountMinor     int64
	Currency        string
	Method          Provider
	Status          PaymentStatus
	GatewayPayload  map[string]any // normalized provider initiation response, JSONB
	CreatedAt       time.Time
	CompletedAt     *time.Time
	LastCheckedAt   *time.Time // last provider status poll by the reconciler
}

// NewPaymentAttempt builds a pending attempt.
func NewPaymentAttempt(id, reference, userID, serviceType string, tokens *int64, amountMinor int64, currency string, method Provider) (*PaymentAttempt, error) {
	if id == "" || reference == "" || amountMinor <= 0 || method == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &PaymentAttempt{
		ID:              id,
		Reference:       reference,
		UserID:          userID,
		ServiceType:     serviceType,
		TokensRequested: tokens,
		AmountMinor:     amountMinor,
		Currency:        currency,
		Method:          method,
		Status:          PaymentStatusPending,
		CreatedAt:       time.Now(),
	}, nil
}

func (a *PaymentAttempt) IsPending() bool { return a != nil && a.Status == PaymentStatusPending }

// AttemptResolution is what the ledger can tell about a reference when a
// confirmation arrives with an incomplete payload.
type AttemptResolution struct {
	UserID      string
	ServiceType string
	Tokens      *int64
	AmountMinor int64
	Method      Provider
	Found       bool
}
