package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")

	wrapped := fmt.Errorf("authenticate: %w", &NetworkError{Op: "token exchange", Err: cause})

	var netErr *NetworkError
	require.True(t, errors.As(wrapped, &netErr))
	assert.Equal(t, "token exchange", netErr.Op)
	assert.True(t, errors.Is(wrapped, cause))
}

func TestCallbackError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *CallbackError
		want string
	}{
		{
			name: "reason only",
			err:  &CallbackError{Reason: CallbackTimeout},
			want: "callback: timeout",
		},
		{
			name: "reason with detail",
			err:  &CallbackError{Reason: CallbackProviderError, Detail: "server_error"},
			want: "callback: provider_error: server_error",
		},
		{
			name: "wrapped cause",
			err:  &CallbackError{Reason: CallbackBindFailure, Err: errors.New("address in use")},
			want: "callback: bind_failure: address in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&TokenError{Reason: "expired"}))
	assert.True(t, IsAuthError(&CallbackError{Reason: CallbackStateMismatch}))
	assert.True(t, IsAuthError(fmt.Errorf("wrapped: %w", &ConfigError{Field: "client_id", Detail: "empty"})))
	assert.False(t, IsAuthError(errors.New("something else")))
	assert.False(t, IsAuthError(nil))
}

func TestCredential_RedactsSecret(t *testing.T) {
	cred := Credential{
		ClientID:     "my-client",
		ClientSecret: "super-secret-value",
		RedirectURI:  "http://127.0.0.1:8000/callback",
	}

	assert.NotContains(t, cred.String(), "super-secret-value")
	assert.Contains(t, cred.String(), "my-client")

	for _, attr := range cred.LogValue().Group() {
		assert.NotContains(t, attr.Value.String(), "super-secret-value")
	}
}

func TestCredential_Validate(t *testing.T) {
	valid := Credential{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:8000/callback"}
	require.NoError(t, valid.Validate())

	var cfgErr *ConfigError

	missingID := valid
	missingID.ClientID = ""
	require.ErrorAs(t, missingID.Validate(), &cfgErr)
	assert.Equal(t, "client_id", cfgErr.Field)

	missingSecret := valid
	missingSecret.ClientSecret = ""
	require.ErrorAs(t, missingSecret.Validate(), &cfgErr)
	assert.Equal(t, "client_secret", cfgErr.Field)

	missingRedirect := valid
	missingRedirect.RedirectURI = ""
	require.ErrorAs(t, missingRedirect.Validate(), &cfgErr)
	assert.Equal(t, "redirect_uri", cfgErr.Field)
}
