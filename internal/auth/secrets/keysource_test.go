package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedSource_StableAcrossCalls(t *testing.T) {
	src := &DerivedSource{Dir: t.TempDir()}

	key1, err := src.Key()
	require.NoError(t, err)
	require.Len(t, key1, keySize)

	key2, err := src.Key()
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "same salt must derive the same key")
}

func TestDerivedSource_PersistsSalt(t *testing.T) {
	dir := t.TempDir()
	src := &DerivedSource{Dir: dir}

	_, err := src.Key()
	require.NoError(t, err)

	salt, err := os.ReadFile(filepath.Join(dir, ".salt"))
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)
}

func TestDerivedSource_DifferentSaltDifferentKey(t *testing.T) {
	src1 := &DerivedSource{Dir: t.TempDir()}
	src2 := &DerivedSource{Dir: t.TempDir()}

	key1, err := src1.Key()
	require.NoError(t, err)
	key2, err := src2.Key()
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
}

func TestDerivedSource_RejectsBadSalt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".salt"), []byte("short"), 0600))

	src := &DerivedSource{Dir: dir}
	_, err := src.Key()
	require.Error(t, err)
}

func TestKeyringSource_Name(t *testing.T) {
	assert.Equal(t, "os-keyring", (&KeyringSource{}).Name())
	assert.Equal(t, "derived", (&DerivedSource{}).Name())
}
