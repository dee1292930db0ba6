package domain

import (
	"errors"
	"fmt"
)

// GatewayAuthError means the credential or session-token exchange with a provider failed.
type GatewayAuthError struct {
	Provider   string
	HTTPStatus int
	Body       string // raw provider body, kept for diagnostics
}

func (e *GatewayAuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (http %d)", e.Provider, e.HTTPStatus)
}

// GatewayRequestError means the provider answered and rejected the request.
// Message is user-facing and already localized when the provider has a code table.
type GatewayRequestError struct {
	Provider   string
	HTTPStatus int
	Code       string
	Message    string
	Body       string
}

func (e *GatewayRequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: request rejected code=%s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: request rejected (http %d): %s", e.Provider, e.HTTPStatus, e.Message)
}

// NetworkError wraps transport-level failures. Timeout is set when the request may
// have reached the provider, so it must not be replayed.
type NetworkError struct {
	Provider string
	Op       string
	Timeout  bool
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: network error: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or invalid provider configuration.
type ConfigurationError struct {
	Provider string
	Field    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing configuration %q", e.Provider, e.Field)
}

// IsRetryable reports whether the caller may replay the request. Only transport
// failures where the request never reached the provider qualify.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return !ne.Timeout
	}
	return false
}
