package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultAuthorizeURL, cfg.API.AuthorizeURL)
	assert.Equal(t, DefaultTokenURL, cfg.API.TokenURL)
	assert.Equal(t, DefaultRedirectURI, cfg.OAuth.RedirectURI)
	assert.Equal(t, DefaultTokenSet, cfg.OAuth.TokenSet)
	assert.Equal(t, DefaultCallbackTimeoutSeconds, cfg.Auth.CallbackTimeoutSeconds)
	assert.Equal(t, DefaultRefreshBufferSeconds, cfg.Auth.RefreshBufferSeconds)
	assert.Equal(t, BackendAuto, cfg.Storage.Backend)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
api:
  tokenUrl: https://sandbox.example.com/oauth/token
oauth:
  clientId: file-client
  redirectUri: http://127.0.0.1:9123/cb
auth:
  refreshBufferSeconds: 120
storage:
  backend: derived
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox.example.com/oauth/token", cfg.API.TokenURL)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultAuthorizeURL, cfg.API.AuthorizeURL)
	assert.Equal(t, "file-client", cfg.OAuth.ClientID)
	assert.Equal(t, "http://127.0.0.1:9123/cb", cfg.OAuth.RedirectURI)
	assert.Equal(t, 120, cfg.Auth.RefreshBufferSeconds)
	assert.Equal(t, BackendDerived, cfg.Storage.Backend)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: ["), 0600))

	_, err := LoadConfig(dir)
	require.Error(t, err)
}

func TestLoadConfig_EnvOverridesCredentials(t *testing.T) {
	dir := t.TempDir()
	content := `
oauth:
  clientId: file-client
  clientSecret: file-secret
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	t.Setenv(EnvClientID, "env-client")
	t.Setenv(EnvClientSecret, "env-secret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.OAuth.ClientID)
	assert.Equal(t, "env-secret", cfg.OAuth.ClientSecret)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty token url",
			mutate:  func(c *Config) { c.API.TokenURL = "" },
			wantErr: "tokenUrl",
		},
		{
			name:    "empty authorize url",
			mutate:  func(c *Config) { c.API.AuthorizeURL = "" },
			wantErr: "authorizeUrl",
		},
		{
			name:    "routable redirect host rejected",
			mutate:  func(c *Config) { c.OAuth.RedirectURI = "http://10.0.0.5:8000/callback" },
			wantErr: "loopback",
		},
		{
			name:   "localhost redirect accepted",
			mutate: func(c *Config) { c.OAuth.RedirectURI = "http://localhost:8000/callback" },
		},
		{
			name:    "zero callback timeout",
			mutate:  func(c *Config) { c.Auth.CallbackTimeoutSeconds = 0 },
			wantErr: "callbackTimeoutSeconds",
		},
		{
			name:    "negative refresh buffer",
			mutate:  func(c *Config) { c.Auth.RefreshBufferSeconds = -1 },
			wantErr: "refreshBufferSeconds",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "vault" },
			wantErr: "storage.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
