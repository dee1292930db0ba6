package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrVerifyNotSupported = errors.New("provider does not support status verification")
	ErrReferralNotFound   = errors.New("referral not found")
	ErrRewardAlreadyGiven = errors.New("referral reward already granted")
	ErrLockHeld           = errors.New("lock is held by another worker")
	ErrInvalidSignature   = errors.New("webhook signature mismatch")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")
)
