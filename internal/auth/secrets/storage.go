// Package secrets persists named binary blobs encrypted at rest.
//
// It is a pure storage leaf: it knows nothing about OAuth or token
// semantics. Blobs are sealed with AES-256-GCM using a key obtained from a
// pluggable KeySource and written via temp-file + atomic rename so a crash
// mid-write never corrupts the previous value.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrIntegrity is returned when a stored blob exists but fails
// authentication on decrypt (tampered file or wrong key). A failed
// integrity check never silently yields garbage plaintext.
var ErrIntegrity = errors.New("blob integrity check failed")

// blobExt is the file extension for encrypted blobs.
const blobExt = ".bin"

// Storage encrypts, persists and retrieves named blobs under a single
// directory controlled by the caller.
type Storage struct {
	dir  string
	aead cipher.AEAD
}

// NewStorage creates the storage directory (0700) if needed and prepares
// the AEAD from the given key source.
func NewStorage(dir string, source KeySource) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("storage directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	key, err := source.Key()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain encryption key from %s: %w", source.Name(), err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	slog.Debug("secure storage initialized",
		"dir", dir,
		"key_source", source.Name(),
	)

	return &Storage{dir: dir, aead: aead}, nil
}

// Store encrypts data and writes it as the blob named name. Existing blobs
// are overwritten atomically: the ciphertext is written to a temp file in
// the same directory and renamed over the target, so readers either see
// the old blob or the new one, never a partial write.
func (s *Storage) Store(name string, data []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext+tag
	sealed := s.aead.Seal(nonce, nonce, data, nil)

	path := s.blobPath(name)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Restrict permissions before any ciphertext hits the disk.
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to restrict temp file permissions: %w", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace blob: %w", err)
	}

	return nil
}

// Retrieve reads and decrypts the blob named name. The second return value
// is false (with a nil error) when no such blob exists; a blob that exists
// but fails authentication returns an error wrapping ErrIntegrity.
func (s *Storage) Retrieve(name string) ([]byte, bool, error) {
	// #nosec G304 -- path is derived from an internal sanitized name
	sealed, err := os.ReadFile(s.blobPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read blob %q: %w", name, err)
	}

	if len(sealed) < s.aead.NonceSize() {
		return nil, false, fmt.Errorf("blob %q is truncated: %w", name, ErrIntegrity)
	}

	nonce := sealed[:s.aead.NonceSize()]
	ciphertext := sealed[s.aead.NonceSize():]

	data, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false, fmt.Errorf("blob %q: %w", name, ErrIntegrity)
	}

	return data, true, nil
}

// Delete removes the blob named name. Deleting a blob that does not exist
// is not an error.
func (s *Storage) Delete(name string) error {
	err := os.Remove(s.blobPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %q: %w", name, err)
	}
	return nil
}

// blobPath maps a logical name to a file path, keeping only characters
// that are safe in a filename.
func (s *Storage) blobPath(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return filepath.Join(s.dir, b.String()+blobExt)
}
