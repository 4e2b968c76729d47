// Package config loads the marketauth configuration: provider endpoints,
// the OAuth client registration, callback and refresh tuning, and secret
// storage placement. Defaults come first, config.yaml overrides them, and
// the client credentials may additionally come from the environment so
// they never have to live in a file.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	API      APIConfig     `yaml:"api"`
	OAuth    OAuthConfig   `yaml:"oauth"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	LogLevel string        `yaml:"logLevel,omitempty"` // debug|info|warn|error (default: info)
}

// APIConfig holds the provider's OAuth endpoints.
type APIConfig struct {
	AuthorizeURL string `yaml:"authorizeUrl,omitempty"` // authorization endpoint opened in the browser
	TokenURL     string `yaml:"tokenUrl,omitempty"`     // token endpoint for code/refresh exchanges
}

// OAuthConfig holds the client registration and token-set naming.
type OAuthConfig struct {
	ClientID     string `yaml:"clientId,omitempty"`     // also MARKETAUTH_CLIENT_ID
	ClientSecret string `yaml:"clientSecret,omitempty"` // also MARKETAUTH_CLIENT_SECRET
	RedirectURI  string `yaml:"redirectUri,omitempty"`  // must match the registered value; loopback host required
	Scope        string `yaml:"scope,omitempty"`
	TokenSet     string `yaml:"tokenSet,omitempty"` // blob name for this account's tokens
}

// AuthConfig tunes flow timing.
type AuthConfig struct {
	CallbackTimeoutSeconds int `yaml:"callbackTimeoutSeconds,omitempty"` // wait for the browser redirect
	RefreshBufferSeconds   int `yaml:"refreshBufferSeconds,omitempty"`   // validity margin before expiry
}

// StorageBackend selects how the at-rest encryption key is obtained.
type StorageBackend string

const (
	// BackendAuto prefers the OS keyring and falls back to the derived
	// key when no keyring is reachable.
	BackendAuto StorageBackend = "auto"
	// BackendKeyring forces the OS keyring.
	BackendKeyring StorageBackend = "keyring"
	// BackendDerived forces the portable machine-derived key.
	BackendDerived StorageBackend = "derived"
)

// StorageConfig places the encrypted token blobs.
type StorageConfig struct {
	Dir     string         `yaml:"dir,omitempty"`
	Backend StorageBackend `yaml:"backend,omitempty"`
}

// CallbackTimeout returns the callback wait bound as a duration.
func (c Config) CallbackTimeout() time.Duration {
	return time.Duration(c.Auth.CallbackTimeoutSeconds) * time.Second
}

// RefreshBuffer returns the validity margin as a duration.
func (c Config) RefreshBuffer() time.Duration {
	return time.Duration(c.Auth.RefreshBufferSeconds) * time.Second
}
