package auth

import (
	"errors"
	"fmt"
)

// The error taxonomy mirrors the failure modes of the credential lifecycle:
//
//   - TokenError:    invalid/expired tokens, definitive token-endpoint
//     rejections, corrupt persisted records
//   - CallbackError: everything that can go wrong around the local
//     authorization callback (timeout, state mismatch, provider-reported
//     error, port bind failure)
//   - NetworkError:  transient connectivity failures during token exchange
//   - ConfigError:   unusable configuration discovered at construction
//
// All of them carry detail sufficient for logging without ever embedding
// token values or the client secret.

// TokenError reports a failure concerning the token set itself.
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: %s: %v", e.Reason, e.Err)
	}
	return "token: " + e.Reason
}

func (e *TokenError) Unwrap() error { return e.Err }

// CallbackReason classifies callback failures.
type CallbackReason string

const (
	// CallbackTimeout means no qualifying request arrived in time.
	CallbackTimeout CallbackReason = "timeout"
	// CallbackStateMismatch means the returned state did not match the
	// live authorization state (possible CSRF).
	CallbackStateMismatch CallbackReason = "state_mismatch"
	// CallbackProviderError means the provider redirected back with an
	// error parameter.
	CallbackProviderError CallbackReason = "provider_error"
	// CallbackBindFailure means the loopback listener could not bind.
	CallbackBindFailure CallbackReason = "bind_failure"
	// CallbackListenerFailure means the loopback listener failed while
	// waiting for the redirect.
	CallbackListenerFailure CallbackReason = "listener_failure"
)

// CallbackError reports a failure of the local authorization callback leg.
type CallbackError struct {
	Reason CallbackReason
	Detail string
	Err    error
}

func (e *CallbackError) Error() string {
	msg := "callback: " + string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallbackError) Unwrap() error { return e.Err }

// NetworkError reports a transient connectivity failure while talking to
// the token endpoint. Callers retry these with bounded backoff; all other
// error kinds propagate without local recovery.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigError reports configuration that cannot drive an authentication
// flow.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Detail)
}

// IsAuthError reports whether err belongs to this package's taxonomy.
func IsAuthError(err error) bool {
	var tokenErr *TokenError
	var callbackErr *CallbackError
	var networkErr *NetworkError
	var configErr *ConfigError
	return errors.As(err, &tokenErr) ||
		errors.As(err, &callbackErr) ||
		errors.As(err, &networkErr) ||
		errors.As(err, &configErr)
}
