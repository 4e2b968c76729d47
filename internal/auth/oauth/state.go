package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// stateBytes is the number of random bytes in the CSRF state parameter.
// 32 bytes is 256 bits of entropy, well above the 128-bit floor, and
// encodes to 43 base64url characters.
const stateBytes = 32

// DefaultStateTTL bounds how long an unconsumed authorization state stays
// acceptable. It matches the default callback wait timeout.
const DefaultStateTTL = 5 * time.Minute

// AuthorizationState is the CSRF state minted for one authorization
// attempt. Exactly one state is live per Client at a time; starting a new
// attempt discards any prior unconsumed state.
type AuthorizationState struct {
	// Token is the opaque random value round-tripped through the redirect.
	Token string

	// AttemptID correlates audit log lines for one flow attempt. It is
	// never sent to the provider.
	AttemptID uuid.UUID

	CreatedAt time.Time
	TTL       time.Duration
}

// NewAuthorizationState mints a fresh state with the given TTL.
func NewAuthorizationState(ttl time.Duration) (*AuthorizationState, error) {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &AuthorizationState{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		AttemptID: uuid.New(),
		CreatedAt: time.Now(),
		TTL:       ttl,
	}, nil
}

// Matches compares a returned state value against the live token without
// an early-exit timing channel.
func (s *AuthorizationState) Matches(returned string) bool {
	return hmac.Equal([]byte(s.Token), []byte(returned))
}

// Expired reports whether the state's TTL has elapsed at the given time.
func (s *AuthorizationState) Expired(now time.Time) bool {
	return now.After(s.CreatedAt.Add(s.TTL))
}
