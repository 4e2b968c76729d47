package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Environment variables that override the client credentials from the
// file, so secrets never need to be written to disk in cleartext.
const (
	EnvClientID     = "MARKETAUTH_CLIENT_ID"
	EnvClientSecret = "MARKETAUTH_CLIENT_SECRET"
)

// LoadConfig loads configuration from configDir/config.yaml on top of the
// defaults, then applies environment overrides. A missing file is fine
// (defaults apply); a malformed one is an error.
func LoadConfig(configDir string) (Config, error) {
	cfg := GetDefaultConfig()

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("no config.yaml found, using defaults", "path", path)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config from %s: %w", path, err)
		}
		slog.Debug("loaded configuration", "path", path)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvClientID); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		cfg.OAuth.ClientSecret = v
	}
}

// Validate checks the parts of the configuration every command depends
// on. Credential presence is checked separately by commands that actually
// drive a flow, so read-only commands work without credentials.
func (c Config) Validate() error {
	if c.API.AuthorizeURL == "" {
		return fmt.Errorf("api.authorizeUrl must not be empty")
	}
	if c.API.TokenURL == "" {
		return fmt.Errorf("api.tokenUrl must not be empty")
	}
	if err := validateLoopbackURI(c.OAuth.RedirectURI); err != nil {
		return err
	}
	if c.Auth.CallbackTimeoutSeconds <= 0 {
		return fmt.Errorf("auth.callbackTimeoutSeconds must be positive")
	}
	if c.Auth.RefreshBufferSeconds < 0 {
		return fmt.Errorf("auth.refreshBufferSeconds must not be negative")
	}
	switch c.Storage.Backend {
	case BackendAuto, BackendKeyring, BackendDerived:
	default:
		return fmt.Errorf("storage.backend must be one of auto, keyring, derived")
	}
	return nil
}

// validateLoopbackURI enforces that the redirect URI targets the loopback
// interface: the callback listener is never exposed on a routable address.
func validateLoopbackURI(redirectURI string) error {
	if redirectURI == "" {
		return fmt.Errorf("oauth.redirectUri must not be empty")
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("oauth.redirectUri is not a valid URL: %w", err)
	}
	host := u.Hostname()
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return fmt.Errorf("oauth.redirectUri host %q must be a loopback address", host)
	}
	return nil
}
