// Package auth defines the authentication capability that API consumers
// depend on, plus the credential and error types shared by all strategies.
//
// Consumers hold a Manager and stay polymorphic over the concrete strategy
// (OAuth today, API-key or certificate strategies later). They never inspect
// the concrete type.
package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager is the capability interface implemented by every authentication
// strategy.
type Manager interface {
	// Authenticate ensures the process holds a usable credential, driving
	// whatever flow is required (cached token, refresh, or interactive
	// authorization). It is idempotent: calling it while already
	// authenticated is a no-op returning true.
	//
	// The bool result is false without an error only when the provider
	// denied authorization in a user-recoverable way (the user declined
	// consent). Infrastructure failures are returned as typed errors
	// (TokenError, CallbackError, NetworkError).
	Authenticate(ctx context.Context) (bool, error)

	// IsAuthenticated reports whether the currently held credential is
	// usable. It inspects local state only and performs no network I/O.
	IsAuthenticated() bool

	// AuthHeaders returns the headers to attach to outbound API requests,
	// typically {"Authorization": "Bearer <token>"}. It fails with a
	// TokenError when called while unauthenticated.
	AuthHeaders() (map[string]string, error)
}

// Credential is the OAuth client registration used to authenticate against
// the provider. It is supplied at construction and immutable for the
// process lifetime.
type Credential struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// String redacts the secret. Credentials must never reach logs or error
// messages in cleartext.
func (c Credential) String() string {
	return fmt.Sprintf("credential(client_id=%s, client_secret=<redacted>)", c.ClientID)
}

// LogValue implements slog.LogValuer so an accidental slog attribute cannot
// leak the client secret.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", c.ClientID),
		slog.Int("client_secret_len", len(c.ClientSecret)),
		slog.String("redirect_uri", c.RedirectURI),
	)
}

// Validate checks that the credential is complete enough to drive a flow.
func (c Credential) Validate() error {
	if c.ClientID == "" {
		return &ConfigError{Field: "client_id", Detail: "must not be empty"}
	}
	if c.ClientSecret == "" {
		return &ConfigError{Field: "client_secret", Detail: "must not be empty"}
	}
	if c.RedirectURI == "" {
		return &ConfigError{Field: "redirect_uri", Detail: "must not be empty"}
	}
	return nil
}
