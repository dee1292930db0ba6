package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRate is applied to every qualifying payment and registration fee.
var CommissionRate = decimal.NewFromFloat(0.10)

// RegistrationCreditPoints is the flat award when a referral registers without a fee.
const RegistrationCreditPoints int64 = 1000

type PaymentType string

const (
	PaymentTypeInitial PaymentType = "initial"
	PaymentTypeRenewal PaymentType = "renewal"
)

type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

type RewardType string

const (
	RewardTypeCreditPoints RewardType = "credit_points"
	RewardTypeCommission   RewardType = "commission"
)

// Referrer holds the directory fields the commission engine reads and mutates.
type Referrer struct {
	UserID                 string
	ReferredBy             *string
	TotalCommissionsEarned int64
	AvailableCommissions   int64
	CurrentCredits         int64
}

type Referral struct {
	ID                        string
	ReferrerID                string
	ReferredUserID            string
	ReferralCode              string
	TotalCommissionsGenerated int64
	FirstPaymentDate          *time.Time
	LastRenewalDate           *time.Time
	CreatedAt                 time.Time
}

type Commission struct {
	ID               string
	ReferralID       string
	ReferrerID       string
	ReferredUserID   string
	PaymentReference string
	PaymentAmount    int64
	CommissionRate   decimal.Decimal
	CommissionAmount int64
	PaymentType      PaymentType
	Status           CommissionStatus
	CreatedAt        time.Time
}

type AffiliateReward struct {
	ID               string
	ReferralID       string
	ReferrerID       string
	RewardType       RewardType
	CreditPoints     int64
	CommissionAmount int64
	RegistrationFee  int64
	CreatedAt        time.Time
}

// CommissionFor returns amountMinor * CommissionRate rounded half-up to minor units.
func CommissionFor(amountMinor int64) int64 {
	if amountMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(amountMinor).Mul(CommissionRate).Round(0).IntPart()
}

// NewAffiliateReward decides the reward kind for a registration: a fee yields a
// commission, no fee yields credit points. Never both.
func NewAffiliateReward(id string, referral *Referral, registrationFee int64) *AffiliateReward {
	r := &AffiliateReward{
		ID:              id,
		ReferralID:      referral.ID,
		ReferrerID:      referral.ReferrerID,
		RegistrationFee: registrationFee,
		CreatedAt:       time.Now(),
	}
	if registrationFee > 0 {
		r.RewardType = RewardTypeCommission
		r.CommissionAmount = CommissionFor(registrationFee)
	} else {
		r.RewardType = RewardTypeCreditPoints
		r.CreditPoints = RegistrationCreditPoints
	}
	return r
}
