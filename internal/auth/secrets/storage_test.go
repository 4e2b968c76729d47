package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticKeySource returns a fixed key so tests are deterministic and do not
// touch the OS keyring.
type staticKeySource struct {
	key []byte
}

func (s *staticKeySource) Key() ([]byte, error) { return s.key, nil }
func (s *staticKeySource) Name() string         { return "static" }

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(t.TempDir(), &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)
	return store
}

func TestStorage_RoundTrip(t *testing.T) {
	store := newTestStorage(t)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "ascii", data: []byte("hello tokens")},
		{name: "binary", data: []byte{0x00, 0xff, 0x10, 0x80, 0x00}},
		{name: "empty", data: []byte{}},
		{name: "large", data: bytes.Repeat([]byte("abcd"), 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Store("roundtrip_"+tt.name, tt.data))

			got, ok, err := store.Retrieve("roundtrip_" + tt.name)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, bytes.Equal(tt.data, got), "retrieved data differs from stored data")
		})
	}
}

func TestStorage_RetrieveAbsent(t *testing.T) {
	store := newTestStorage(t)

	data, ok, err := store.Retrieve("never_stored")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestStorage_Overwrite(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.Store("tokens", []byte("first")))
	require.NoError(t, store.Store("tokens", []byte("second")))

	got, ok, err := store.Retrieve("tokens")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
}

func TestStorage_TamperDetection(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)

	require.NoError(t, store.Store("tokens", []byte("sensitive payload")))

	path := filepath.Join(dir, "tokens.bin")
	sealed, err := os.ReadFile(path)
	require.NoError(t, err)

	// Corrupt each byte position in turn; every mutation must be detected.
	for i := range sealed {
		corrupted := make([]byte, len(sealed))
		copy(corrupted, sealed)
		corrupted[i] ^= 0x01
		require.NoError(t, os.WriteFile(path, corrupted, 0600))

		data, ok, err := store.Retrieve("tokens")
		require.ErrorIs(t, err, ErrIntegrity, "mutation at byte %d was not detected", i)
		assert.False(t, ok)
		assert.Nil(t, data)
	}
}

func TestStorage_TruncatedBlob(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.bin"), []byte{0x01, 0x02}, 0600))

	_, _, err = store.Retrieve("tokens")
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestStorage_WrongKey(t *testing.T) {
	dir := t.TempDir()

	store1, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)
	require.NoError(t, store1.Store("tokens", []byte("payload")))

	store2, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x43}, 32)})
	require.NoError(t, err)

	_, _, err = store2.Retrieve("tokens")
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestStorage_Delete(t *testing.T) {
	store := newTestStorage(t)

	require.NoError(t, store.Store("tokens", []byte("payload")))
	require.NoError(t, store.Delete("tokens"))

	_, ok, err := store.Retrieve("tokens")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is not an error.
	require.NoError(t, store.Delete("tokens"))
}

func TestStorage_SanitizesNames(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)

	require.NoError(t, store.Store("../escape/attempt", []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".._escape_attempt.bin", entries[0].Name())

	got, ok, err := store.Retrieve("../escape/attempt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("data"), got)
}

func TestStorage_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStorage(dir, &staticKeySource{key: bytes.Repeat([]byte{0x42}, 32)})
	require.NoError(t, err)

	require.NoError(t, store.Store("tokens", []byte("payload")))

	info, err := os.Stat(filepath.Join(dir, "tokens.bin"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
