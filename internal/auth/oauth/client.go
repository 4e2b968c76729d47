package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketauth/internal/auth"
)

// ClientConfig configures the OAuth client.
type ClientConfig struct {
	// Credential is the client registration. Its RedirectURI must point at
	// the loopback interface and carry an explicit port; the callback
	// listener binds exactly there.
	Credential auth.Credential

	// AuthorizeURL is the provider's authorization endpoint.
	AuthorizeURL string

	// Scope is the space-separated scope set to request. Optional.
	Scope string

	// TokenManager owns the token set this client maintains. Required.
	TokenManager *TokenManager

	// CallbackTimeout bounds the wait for the authorization redirect.
	// Defaults to DefaultCallbackTimeout.
	CallbackTimeout time.Duration

	// RefreshBuffer is the validity margin required of the access token.
	// Defaults to DefaultRefreshBuffer.
	RefreshBuffer time.Duration

	// OpenURL hands the authorization URL to a user agent. Defaults to
	// OpenBrowser; failure is non-fatal (the URL is logged for manual use).
	OpenURL func(url string) error
}

// Client drives the OAuth2 authorization-code lifecycle and implements
// auth.Manager. One Client instance owns one TokenManager; multiple
// accounts coexist by constructing multiple clients, there is no
// process-wide singleton.
type Client struct {
	credential      auth.Credential
	authorizeURL    string
	scope           string
	tokens          *TokenManager
	callbackTimeout time.Duration
	refreshBuffer   time.Duration
	openURL         func(string) error

	callbackPort int
	callbackPath string

	// flight collapses concurrent Authenticate calls into one flow: while
	// an attempt is in progress, other callers wait on its outcome instead
	// of starting a second refresh or a second callback listener.
	flight singleflight.Group

	// mu guards the live authorization state. At most one state exists at
	// a time; a new attempt invalidates any prior unconsumed one.
	mu    sync.Mutex
	state *AuthorizationState
}

var _ auth.Manager = (*Client)(nil)

// NewClient validates the configuration and creates a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Credential.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenManager == nil {
		return nil, errors.New("oauth client requires a token manager")
	}
	if cfg.AuthorizeURL == "" {
		return nil, &auth.ConfigError{Field: "authorize_url", Detail: "must not be empty"}
	}

	port, path, err := parseLoopbackRedirect(cfg.Credential.RedirectURI)
	if err != nil {
		return nil, err
	}

	callbackTimeout := cfg.CallbackTimeout
	if callbackTimeout <= 0 {
		callbackTimeout = DefaultCallbackTimeout
	}
	refreshBuffer := cfg.RefreshBuffer
	if refreshBuffer <= 0 {
		refreshBuffer = DefaultRefreshBuffer
	}
	openURL := cfg.OpenURL
	if openURL == nil {
		openURL = OpenBrowser
	}

	return &Client{
		credential:      cfg.Credential,
		authorizeURL:    cfg.AuthorizeURL,
		scope:           cfg.Scope,
		tokens:          cfg.TokenManager,
		callbackTimeout: callbackTimeout,
		refreshBuffer:   refreshBuffer,
		openURL:         openURL,
		callbackPort:    port,
		callbackPath:    path,
	}, nil
}

// parseLoopbackRedirect checks that the registered redirect URI points at
// the loopback interface with an explicit port, and extracts where the
// callback listener must bind.
func parseLoopbackRedirect(redirectURI string) (port int, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return 0, "", &auth.ConfigError{Field: "redirect_uri", Detail: "not a valid URL"}
	}
	host := u.Hostname()
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return 0, "", &auth.ConfigError{
			Field:  "redirect_uri",
			Detail: fmt.Sprintf("host %q is not a loopback address", host),
		}
	}
	if u.Port() == "" {
		return 0, "", &auth.ConfigError{Field: "redirect_uri", Detail: "must carry an explicit port"}
	}
	// Port 0 binds an ephemeral port; only meaningful when the provider
	// does not enforce exact redirect matching.
	var p int
	if _, err := fmt.Sscanf(u.Port(), "%d", &p); err != nil || p < 0 {
		return 0, "", &auth.ConfigError{Field: "redirect_uri", Detail: "invalid port"}
	}
	path = u.Path
	if path == "" {
		path = DefaultCallbackPath
	}
	return p, path, nil
}

// Authenticate ensures a usable credential is held, running at most one
// flow at a time: concurrent callers join the in-flight attempt and share
// its outcome. The first caller's context governs the shared attempt.
func (c *Client) Authenticate(ctx context.Context) (bool, error) {
	v, err, _ := c.flight.Do("authenticate", func() (interface{}, error) {
		return c.authenticate(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// authenticate is the single-flight body: reuse, refresh, or full flow.
func (c *Client) authenticate(ctx context.Context) (bool, error) {
	// Step 1: a valid cached token needs no network at all.
	if c.tokens.IsValid(c.refreshBuffer) {
		slog.Debug("already authenticated, reusing cached token")
		return true, nil
	}

	// Step 2: try the refresh token before bothering the user.
	if c.tokens.HasRefreshToken() {
		_, err := c.tokens.Refresh(ctx)
		if err == nil {
			slog.Info("access token refreshed")
			return true, nil
		}

		var tokenErr *auth.TokenError
		var netErr *auth.NetworkError
		switch {
		case errors.As(err, &tokenErr):
			// Definitive rejection (revoked/expired refresh token): the
			// full flow is the only way forward.
			slog.Warn("token refresh rejected, starting full authorization flow",
				"error", err.Error(),
			)
		case errors.As(err, &netErr):
			// Transient failures were already retried with backoff inside
			// the exchange; fall through to the full flow.
			slog.Warn("token refresh unreachable after retries, starting full authorization flow",
				"error", err.Error(),
			)
		default:
			return false, err
		}
	}

	// Step 3 + 4: full authorization-code round trip.
	return c.runAuthorizationFlow(ctx)
}

// runAuthorizationFlow drives one browser-based authorization attempt.
func (c *Client) runAuthorizationFlow(ctx context.Context) (bool, error) {
	state, err := NewAuthorizationState(c.callbackTimeout)
	if err != nil {
		return false, err
	}

	// Installing the fresh state invalidates any prior unconsumed one.
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.state == state {
			c.state = nil
		}
		c.mu.Unlock()
	}()

	server := NewCallbackServer(c.callbackPort, c.callbackPath)
	if _, err := server.Start(ctx); err != nil {
		return false, err
	}
	defer server.Stop()

	// The redirect URI is sent exactly as registered, except when an
	// ephemeral port was configured: then the bound port is the only one
	// that works.
	redirectURI := c.credential.RedirectURI
	if c.callbackPort == 0 {
		redirectURI = server.RedirectURI()
	}

	authURL := c.buildAuthorizationURL(state, redirectURI)
	slog.Info("starting authorization flow",
		"attempt_id", state.AttemptID.String(),
		"authorize_url", c.authorizeURL,
	)

	if err := c.openURL(authURL); err != nil {
		// Not fatal: the operator can open the URL manually.
		slog.Warn("could not open browser, open the authorization URL manually",
			"attempt_id", state.AttemptID.String(),
			"url", authURL,
			"error", err.Error(),
		)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.callbackTimeout)
	defer cancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		server.Stop()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return false, &auth.CallbackError{
				Reason: auth.CallbackTimeout,
				Detail: fmt.Sprintf("no callback within %s", c.callbackTimeout),
			}
		case errors.Is(err, context.Canceled):
			// The surrounding operation was cancelled; that is not a flow
			// failure, so the caller's cancellation propagates as-is.
			return false, err
		default:
			return false, &auth.CallbackError{Reason: auth.CallbackListenerFailure, Err: err}
		}
	}

	if result.IsError() {
		slog.Warn("provider reported authorization error",
			"attempt_id", state.AttemptID.String(),
			"provider_error", result.Error,
		)
		// Declined consent is the one user-recoverable outcome: the flow
		// completed, the provider just said no.
		if result.Error == "access_denied" {
			return false, nil
		}
		detail := result.Error
		if result.ErrorDescription != "" {
			detail += ": " + result.ErrorDescription
		}
		return false, &auth.CallbackError{Reason: auth.CallbackProviderError, Detail: detail}
	}

	// CSRF check: an exact state match is required before any code
	// exchange is issued. Mismatch is fatal to this attempt, never retried
	// with the same state.
	if !state.Matches(result.State) {
		slog.Warn("SECURITY_AUDIT: authorization state mismatch",
			"event", "state_mismatch",
			"attempt_id", state.AttemptID.String(),
			"expected_len", len(state.Token),
			"received_len", len(result.State),
		)
		return false, &auth.CallbackError{
			Reason: auth.CallbackStateMismatch,
			Detail: "returned state does not match this attempt",
		}
	}
	if state.Expired(time.Now()) {
		return false, &auth.CallbackError{
			Reason: auth.CallbackTimeout,
			Detail: "authorization state expired before the callback arrived",
		}
	}
	if result.Code == "" {
		return false, &auth.CallbackError{
			Reason: auth.CallbackProviderError,
			Detail: "callback carried neither a code nor an error",
		}
	}

	record, err := c.tokens.endpoint.exchange(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {result.Code},
		"redirect_uri": {redirectURI},
	})
	if err != nil {
		return false, fmt.Errorf("authorization code exchange failed: %w", err)
	}

	if err := c.tokens.Save(record); err != nil {
		return false, err
	}

	slog.Info("authorization flow completed",
		"attempt_id", state.AttemptID.String(),
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
	)
	return true, nil
}

// buildAuthorizationURL assembles the URL the user agent opens.
func (c *Client) buildAuthorizationURL(state *AuthorizationState, redirectURI string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.credential.ClientID},
		"redirect_uri":  {redirectURI},
		"state":         {state.Token},
	}
	if c.scope != "" {
		params.Set("scope", c.scope)
	}

	sep := "?"
	if strings.Contains(c.authorizeURL, "?") {
		sep = "&"
	}
	return c.authorizeURL + sep + params.Encode()
}

// IsAuthenticated reports token validity from local state only; it never
// performs network I/O and never fails.
func (c *Client) IsAuthenticated() bool {
	return c.tokens.IsValid(c.refreshBuffer)
}

// AuthHeaders returns the bearer header for API requests. It fails with a
// TokenError while unauthenticated; it does not trigger a flow.
func (c *Client) AuthHeaders() (map[string]string, error) {
	if !c.IsAuthenticated() {
		return nil, &auth.TokenError{Reason: "not authenticated"}
	}
	return c.tokens.AuthHeader()
}

// TokenInfo exposes a redacted snapshot of the token set for status
// display.
func (c *Client) TokenInfo() TokenInfo {
	return c.tokens.Info()
}

// Revoke discards the held token set, in memory and at rest.
func (c *Client) Revoke() error {
	return c.tokens.Clear()
}
