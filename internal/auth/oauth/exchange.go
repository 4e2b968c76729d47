package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketauth/internal/auth"
)

// DefaultHTTPTimeout is the default timeout for token-endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

const (
	// exchangeMaxAttempts bounds retries of transient token-endpoint
	// failures. Definitive rejections are never retried.
	exchangeMaxAttempts = 3

	// exchangeInitialDelay is the first backoff delay; it doubles per
	// attempt (500ms, 1s).
	exchangeInitialDelay = 500 * time.Millisecond
)

// tokenResponse is the JSON body of a successful token-endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// tokenErrorResponse is the JSON body the provider sends on rejection.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// defaultExpiresIn is assumed when the provider omits expires_in.
const defaultExpiresIn = 3600

// tokenEndpoint performs form-encoded POSTs against the provider's token
// URL. It is shared by the refresh and authorization-code exchanges so
// both get identical transport, retry and error-classification behavior.
type tokenEndpoint struct {
	url        string
	credential auth.Credential
	httpClient *http.Client
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func newTokenEndpoint(tokenURL string, credential auth.Credential, httpClient *http.Client) *tokenEndpoint {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &tokenEndpoint{
		url:        tokenURL,
		credential: credential,
		httpClient: httpClient,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// exchange POSTs the given grant parameters, retrying transient failures
// (transport errors and 5xx responses) with bounded exponential backoff.
// A 4xx response is a definitive rejection and surfaces immediately as a
// TokenError; exhausted retries surface as a NetworkError.
func (e *tokenEndpoint) exchange(ctx context.Context, form url.Values) (*TokenRecord, error) {
	form.Set("client_id", e.credential.ClientID)
	form.Set("client_secret", e.credential.ClientSecret)
	body := form.Encode()
	grantType := form.Get("grant_type")

	var lastErr error
	delay := exchangeInitialDelay

	for attempt := 1; attempt <= exchangeMaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, delay); err != nil {
				return nil, &auth.NetworkError{Op: "token exchange", Err: err}
			}
			delay *= 2
		}

		record, retryable, err := e.post(ctx, body)
		if err == nil {
			return record, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		slog.Debug("transient token endpoint failure, will retry",
			"grant_type", grantType,
			"attempt", attempt,
			"error", err.Error(),
		)
	}

	return nil, &auth.NetworkError{
		Op:  fmt.Sprintf("token exchange (%s) after %d attempts", grantType, exchangeMaxAttempts),
		Err: lastErr,
	}
}

// post performs one token-endpoint request. The second return value says
// whether a failure is worth retrying.
func (e *tokenEndpoint) post(ctx context.Context, body string) (*TokenRecord, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(body))
	if err != nil {
		return nil, false, &auth.TokenError{Reason: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, true, &auth.NetworkError{Op: "token endpoint request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &auth.NetworkError{Op: "reading token response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode below
	case resp.StatusCode >= 500:
		return nil, true, &auth.NetworkError{
			Op:  "token endpoint",
			Err: fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	default:
		// 4xx: a definitive rejection (revoked refresh token, bad code,
		// bad client). The provider's error code is safe to surface; the
		// raw body may not be.
		var provider tokenErrorResponse
		reason := fmt.Sprintf("token endpoint rejected request with status %d", resp.StatusCode)
		if json.Unmarshal(respBody, &provider) == nil && provider.Error != "" {
			reason = fmt.Sprintf("%s: %s", reason, provider.Error)
			if provider.ErrorDescription != "" {
				reason = fmt.Sprintf("%s (%s)", reason, provider.ErrorDescription)
			}
		}
		return nil, false, &auth.TokenError{Reason: reason}
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, false, &auth.TokenError{Reason: "malformed token response", Err: err}
	}
	if tr.AccessToken == "" {
		return nil, false, &auth.TokenError{Reason: "token response contained no access token"}
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	now := e.now()
	return &TokenRecord{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(expiresIn) * time.Second),
		Scope:        tr.Scope,
		CreatedAt:    now,
	}, false, nil
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
