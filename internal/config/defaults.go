package config

import (
	"os"
	"path/filepath"
)

const (
	// DefaultAuthorizeURL is the provider's authorization endpoint.
	DefaultAuthorizeURL = "https://api.schwabapi.com/v1/oauth/authorize"

	// DefaultTokenURL is the provider's token endpoint.
	DefaultTokenURL = "https://api.schwabapi.com/v1/oauth/token"

	// DefaultRedirectURI is the registered loopback redirect.
	DefaultRedirectURI = "http://127.0.0.1:8000/callback"

	// DefaultTokenSet names the blob holding the default account's tokens.
	DefaultTokenSet = "market_data_tokens"

	// DefaultCallbackTimeoutSeconds bounds the wait for the redirect.
	DefaultCallbackTimeoutSeconds = 300

	// DefaultRefreshBufferSeconds is the validity margin before expiry.
	DefaultRefreshBufferSeconds = 60
)

// userConfigDir is the per-user config location, relative to $HOME.
const userConfigDir = ".config/marketauth"

// GetDefaultConfigDir returns ~/.config/marketauth, or a relative
// fallback when the home directory cannot be determined.
func GetDefaultConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return userConfigDir
	}
	return filepath.Join(homeDir, userConfigDir)
}

// GetDefaultConfig returns the configuration used before any file or
// environment overrides.
func GetDefaultConfig() Config {
	return Config{
		API: APIConfig{
			AuthorizeURL: DefaultAuthorizeURL,
			TokenURL:     DefaultTokenURL,
		},
		OAuth: OAuthConfig{
			RedirectURI: DefaultRedirectURI,
			TokenSet:    DefaultTokenSet,
		},
		Auth: AuthConfig{
			CallbackTimeoutSeconds: DefaultCallbackTimeoutSeconds,
			RefreshBufferSeconds:   DefaultRefreshBufferSeconds,
		},
		Storage: StorageConfig{
			Dir:     filepath.Join(GetDefaultConfigDir(), "secrets"),
			Backend: BackendAuto,
		},
		LogLevel: "info",
	}
}
