package model

import "time"

type CreditSource string

const (
	CreditSourceWebhook    CreditSource = "webhook"
	CreditSourceVerify     CreditSource = "verify"
	CreditSourceReconciler CreditSource = "reconciler"
)

// CreditInput is the union of whatever a confirmation carried. Missing fields are
// filled from the attempt ledger.
type CreditInput struct {
	Reference   string
	UserID      string
	ServiceType string
	Tokens      *int64
	AmountMinor int64
	Method      Provider
	Source      CreditSource
}

type CreditStatus string

const (
	CreditStatusCredited CreditStatus = "credited"
	CreditStatusSkipped  CreditStatus = "skipped"
)

// SkipReason explains a credit that was intentionally not applied.
type SkipReason string

const (
	SkipUnresolvedIdentity SkipReason = "unresolved_identity"
	SkipNoSubscription     SkipReason = "no_subscription"
	SkipInvalidTokenValue  SkipReason = "invalid_token_value"
	SkipZeroTokens         SkipReason = "zero_tokens"
	SkipAlreadyProcessed   SkipReason = "already_processed"
	SkipStorageError       SkipReason = "storage_error"
)

type CreditResult struct {
	Status         CreditStatus
	Reason         SkipReason
	Reference      string
	SubscriptionID string
	Tokens         int64
	TokenValue     int64
	PaymentType    PaymentType
}

func Skipped(reason SkipReason, reference string) CreditResult {
	return CreditResult{Status: CreditStatusSkipped, Reason: reason, Reference: reference}
}

func (r CreditResult) IsCredited() bool { return r.Status == CreditStatusCredited }

// Credited is emitted once per successful credit.
type Credited struct {
	EventID     string       `json:"event_id"`
	Reference   string       `json:"reference"`
	UserID      string       `json:"user_id"`
	ServiceType string       `json:"service_type"`
	Tokens      int64        `json:"tokens"`
	AmountMinor int64        `json:"amount_minor"`
	Method      Provider     `json:"method"`
	PaymentType PaymentType  `json:"payment_type"`
	Source      CreditSource `json:"source"`
	CreditedAt  time.Time    `json:"credited_at"`
}

// ConfirmationEvent is a provider callback normalized at the adapter boundary.
type ConfirmationEvent struct {
	Provider    Provider
	Reference   string
	UserID      string
	ServiceType string
	Tokens      *int64
	AmountMinor int64
	Success     bool
	RawStatus   string

	// CallbackToken is the per-payment secret echoed back by providers that
	// issue one at initiation.
	CallbackToken string
}

// VerifyStatus is the normalized outcome of an active status query.
type VerifyStatus string

const (
	VerifyStatusPending   VerifyStatus = "pending"
	VerifyStatusCompleted VerifyStatus = "completed"
	VerifyStatusFailed    VerifyStatus = "failed"
)
