package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthorizationState_Entropy(t *testing.T) {
	state, err := NewAuthorizationState(0)
	require.NoError(t, err)

	// 32 random bytes encode to 43 base64url characters, comfortably above
	// the 128-bit entropy floor.
	assert.Len(t, state.Token, 43)
	assert.Equal(t, DefaultStateTTL, state.TTL)
	assert.NotZero(t, state.AttemptID)
}

func TestNewAuthorizationState_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		state, err := NewAuthorizationState(time.Minute)
		require.NoError(t, err)
		require.False(t, seen[state.Token], "duplicate state token generated")
		seen[state.Token] = true
	}
}

func TestAuthorizationState_Matches(t *testing.T) {
	state, err := NewAuthorizationState(time.Minute)
	require.NoError(t, err)

	assert.True(t, state.Matches(state.Token))

	// A single-character difference anywhere must fail the match.
	mutated := []byte(state.Token)
	mutated[0] ^= 0x01
	assert.False(t, state.Matches(string(mutated)))

	assert.False(t, state.Matches(""))
	assert.False(t, state.Matches(state.Token+"x"))
	assert.False(t, state.Matches(state.Token[:len(state.Token)-1]))
}

func TestAuthorizationState_Expired(t *testing.T) {
	state, err := NewAuthorizationState(time.Minute)
	require.NoError(t, err)

	assert.False(t, state.Expired(state.CreatedAt))
	assert.False(t, state.Expired(state.CreatedAt.Add(time.Minute)))
	assert.True(t, state.Expired(state.CreatedAt.Add(time.Minute+time.Second)))
}
