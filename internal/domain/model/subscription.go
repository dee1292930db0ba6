package model

import (
	"time"

	"paygate/internal/domain"
)

// Subscription holds a user's token balance for one service type.
// It is never deleted, only deactivated.
type Subscription struct {
	ID           string
	UserID       string
	ServiceType  string
	TokenBalance int64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewSubscription(id, userID, serviceType string) (*Subscription, error) {
	if id == "" || userID == "" || serviceType == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:          id,
		UserID:      userID,
		ServiceType: serviceType,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type TokenTransactionType string

const (
	TokenTransactionPurchase    TokenTransactionType = "purchase"
	TokenTransactionRescueClaim TokenTransactionType = "rescue_claim"
)

// TokenTransaction is an append-only ledger line. TokenAmount is signed: purchases
// are positive, rescue claims negative.
type TokenTransaction struct {
	ID               string
	SubscriptionID   string
	Type             TokenTransactionType
	TokenAmount      int64
	TokenValueMinor  int64
	PaymentMethod    Provider
	PaymentStatus    PaymentStatus
	PaymentReference string
	CreatedAt        time.Time
}

// LedgerDrift is a subscription whose balance disagrees with its transaction log.
type LedgerDrift struct {
	SubscriptionID string
	UserID         string
	ServiceType    string
	TokenBalance   int64
	LedgerSum      int64
}

func (d LedgerDrift) Delta() int64 { return d.TokenBalance - d.LedgerSum }
