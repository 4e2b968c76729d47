package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"marketauth/internal/auth"
	"marketauth/internal/auth/secrets"
)

// DefaultTokenSetName is the blob name for the default account's tokens.
const DefaultTokenSetName = "market_data_tokens"

// DefaultRefreshBuffer is the margin required between now and token expiry
// for the access token to count as usable. It absorbs clock skew, network
// latency and long-running requests.
const DefaultRefreshBuffer = 60 * time.Second

// TokenRecord is the persisted representation of one token set.
type TokenRecord struct {
	// AccessToken is the bearer credential for API requests.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens without user interaction.
	// May be absent, which forces a full authorization flow.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the absolute expiry of the access token.
	ExpiresAt time.Time `json:"expires_at"`

	// Scope is the space-separated granted scope set, as reported by the
	// provider.
	Scope string `json:"scope,omitempty"`

	// CreatedAt is when this record was obtained.
	CreatedAt time.Time `json:"created_at"`
}

// Token converts the record to an oauth2.Token for callers that integrate
// with golang.org/x/oauth2 transports.
func (r *TokenRecord) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       r.ExpiresAt,
	}
}

// TokenInfo is a redacted snapshot of the current record, safe to print.
type TokenInfo struct {
	Status          string    `json:"status"` // "no_token", "valid" or "expired"
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
	ExpiresIn       int       `json:"expires_in,omitempty"` // seconds, negative when expired
	HasRefreshToken bool      `json:"has_refresh_token"`
	Scope           string    `json:"scope,omitempty"`
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	// Storage persists the encrypted record. Required.
	Storage *secrets.Storage

	// SetName is the blob name for this token set, typically an account
	// identifier. Defaults to DefaultTokenSetName.
	SetName string

	// TokenURL is the provider's token endpoint.
	TokenURL string

	// Credential identifies the client at the token endpoint.
	Credential auth.Credential

	// RefreshBuffer is the validity margin the manager requires of the
	// access token, including when deciding whether a concurrent refresh
	// already produced a usable record. Must match the margin the owning
	// client enforces. Defaults to DefaultRefreshBuffer.
	RefreshBuffer time.Duration

	// HTTPClient is optional; a client with DefaultHTTPTimeout is used
	// when nil.
	HTTPClient *http.Client
}

// TokenManager owns the token set for one account. The in-memory record is
// the source of truth during the process lifetime; secrets.Storage is the
// durability mechanism consulted at startup and written through on every
// mutation. All writes to storage go through this type (single-writer
// discipline), and refreshes are serialized per process so two concurrent
// refreshes cannot invalidate each other's tokens server-side.
type TokenManager struct {
	mu      sync.RWMutex
	storage *secrets.Storage
	setName string

	endpoint      *tokenEndpoint
	record        *TokenRecord
	refreshBuffer time.Duration

	// refreshMu serializes refresh exchanges.
	refreshMu sync.Mutex

	now func() time.Time
}

// NewTokenManager creates a token manager and loads any persisted record.
// A missing record is not an error; a corrupt one is.
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if cfg.Storage == nil {
		return nil, errors.New("token manager requires storage")
	}
	setName := cfg.SetName
	if setName == "" {
		setName = DefaultTokenSetName
	}
	refreshBuffer := cfg.RefreshBuffer
	if refreshBuffer <= 0 {
		refreshBuffer = DefaultRefreshBuffer
	}

	m := &TokenManager{
		storage:       cfg.Storage,
		setName:       setName,
		endpoint:      newTokenEndpoint(cfg.TokenURL, cfg.Credential, cfg.HTTPClient),
		refreshBuffer: refreshBuffer,
		now:           time.Now,
	}

	if _, err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads the persisted record into memory. It returns nil (and no
// error) when no record has been stored yet, and a TokenError when the
// stored blob fails integrity verification or cannot be decoded.
func (m *TokenManager) Load() (*TokenRecord, error) {
	data, ok, err := m.storage.Retrieve(m.setName)
	if err != nil {
		if errors.Is(err, secrets.ErrIntegrity) {
			return nil, &auth.TokenError{Reason: "persisted token record failed integrity check", Err: err}
		}
		return nil, &auth.TokenError{Reason: "reading persisted token record", Err: err}
	}
	if !ok {
		slog.Debug("no persisted token record", "set", m.setName)
		return nil, nil
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &auth.TokenError{Reason: "persisted token record is not valid JSON", Err: err}
	}

	m.mu.Lock()
	m.record = &record
	m.mu.Unlock()

	slog.Debug("loaded persisted token record",
		"set", m.setName,
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", record.RefreshToken != "",
	)
	return &record, nil
}

// Save persists the record and installs it as the in-memory source of
// truth. Persistence completes before Save returns, and a subsequent
// Current/IsValid in this process observes the new record immediately.
func (m *TokenManager) Save(record *TokenRecord) error {
	if record == nil || record.AccessToken == "" {
		return &auth.TokenError{Reason: "refusing to save empty token record"}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &auth.TokenError{Reason: "serializing token record", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Store(m.setName, data); err != nil {
		slog.Warn("SECURITY_AUDIT: token record persistence failed",
			"event", "token_store_failed",
			"set", m.setName,
			"error", err.Error(),
		)
		return &auth.TokenError{Reason: "persisting token record", Err: err}
	}
	m.record = record

	slog.Info("SECURITY_AUDIT: token record stored",
		"event", "token_stored",
		"set", m.setName,
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", record.RefreshToken != "",
	)
	return nil
}

// Current returns a copy of the in-memory record, or nil when none exists.
func (m *TokenManager) Current() *TokenRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return nil
	}
	copied := *m.record
	return &copied
}

// IsValid reports whether the access token is usable: a token is valid
// only while now+buffer is strictly before its expiry, so it is already
// invalid at exact equality.
func (m *TokenManager) IsValid(buffer time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil || m.record.AccessToken == "" {
		return false
	}
	return m.now().Add(buffer).Before(m.record.ExpiresAt)
}

// HasRefreshToken reports whether a refresh token is available.
func (m *TokenManager) HasRefreshToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record != nil && m.record.RefreshToken != ""
}

// Refresh performs a refresh_token exchange and persists the result.
// Refreshes are serialized: a concurrent caller blocks and then reuses the
// record the first refresh produced instead of issuing a second exchange.
// Definitive rejections surface as TokenError; transient failures are
// retried with bounded backoff inside the exchange and surface as
// NetworkError when exhausted.
func (m *TokenManager) Refresh(ctx context.Context) (*TokenRecord, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	var refreshToken string
	if m.record != nil {
		refreshToken = m.record.RefreshToken
	}
	m.mu.RUnlock()

	if refreshToken == "" {
		return nil, &auth.TokenError{Reason: "no refresh token available"}
	}

	// Another caller may have refreshed while we waited on refreshMu; if
	// the token is usable under the configured margin there is nothing
	// left to do.
	if m.IsValid(m.refreshBuffer) {
		return m.Current(), nil
	}

	slog.Debug("refreshing access token", "set", m.setName)

	record, err := m.endpoint.exchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	// Providers may omit the refresh token on refresh; keep the old one.
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}

	if err := m.Save(record); err != nil {
		return nil, err
	}
	return record, nil
}

// AuthHeader returns the bearer Authorization header for the current
// access token, failing with a TokenError when none is held.
func (m *TokenManager) AuthHeader() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil || m.record.AccessToken == "" {
		return nil, &auth.TokenError{Reason: "no access token available"}
	}
	token := m.record.Token()
	return map[string]string{"Authorization": token.Type() + " " + token.AccessToken}, nil
}

// Clear discards the in-memory record and removes the persisted blob.
func (m *TokenManager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = nil
	if err := m.storage.Delete(m.setName); err != nil {
		slog.Warn("SECURITY_AUDIT: token record deletion failed",
			"event", "token_delete_failed",
			"set", m.setName,
			"error", err.Error(),
		)
		return &auth.TokenError{Reason: "deleting persisted token record", Err: err}
	}

	slog.Info("SECURITY_AUDIT: token record deleted",
		"event", "token_deleted",
		"set", m.setName,
	)
	return nil
}

// Info returns a redacted snapshot for status display.
func (m *TokenManager) Info() TokenInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record == nil || m.record.AccessToken == "" {
		return TokenInfo{Status: "no_token"}
	}

	remaining := m.record.ExpiresAt.Sub(m.now())
	status := "valid"
	if remaining <= 0 {
		status = "expired"
	}
	return TokenInfo{
		Status:          status,
		ExpiresAt:       m.record.ExpiresAt,
		ExpiresIn:       int(remaining.Seconds()),
		HasRefreshToken: m.record.RefreshToken != "",
		Scope:           m.record.Scope,
	}
}
