package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"
)

// keySize is the AES-256 key length.
const keySize = 32

// KeySource supplies the encryption key for Storage. The choice of backend
// is an implementation detail hidden from everything above this package.
type KeySource interface {
	// Key returns the 32-byte encryption key, creating and persisting it
	// on first use.
	Key() ([]byte, error)

	// Name identifies the backend for logging.
	Name() string
}

// KeyringSource keeps a random key in the operating system's credential
// store (Keychain, Secret Service, Windows Credential Manager).
type KeyringSource struct {
	Service string
	Account string
}

func (s *KeyringSource) Name() string { return "os-keyring" }

// Key fetches the stored key, generating and persisting a fresh random key
// on first use.
func (s *KeyringSource) Key() ([]byte, error) {
	encoded, err := keyring.Get(s.Service, s.Account)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("keyring entry for %s/%s is not a valid key", s.Service, s.Account)
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring lookup failed: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := keyring.Set(s.Service, s.Account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("failed to persist key to keyring: %w", err)
	}
	return key, nil
}

// saltSize is the length of the random salt persisted by DerivedSource.
const saltSize = 16

// derivedKeyIterations is the PBKDF2 iteration count for the portable
// fallback backend.
const derivedKeyIterations = 100_000

// DerivedSource is the portable fallback backend: it derives the key from
// machine- and user-scoped identity via PBKDF2 with a random salt persisted
// next to the blobs. Weaker than an OS credential store, but it keeps
// tokens unreadable to a casual copy of the storage directory.
type DerivedSource struct {
	// Dir is where the salt file lives, normally the storage directory.
	Dir string
}

func (s *DerivedSource) Name() string { return "derived" }

func (s *DerivedSource) Key() ([]byte, error) {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(s.machineIdentity(), salt, derivedKeyIterations, keySize, sha256.New), nil
}

func (s *DerivedSource) loadOrCreateSalt() ([]byte, error) {
	path := filepath.Join(s.Dir, ".salt")

	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltSize {
			return nil, fmt.Errorf("salt file %s has unexpected size %d", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create salt directory: %w", err)
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to persist salt: %w", err)
	}
	return salt, nil
}

// machineIdentity builds the PBKDF2 password from hostname, OS and user id.
// Not a secret, but it scopes the derived key to this machine and user.
func (s *DerivedSource) machineIdentity() []byte {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return []byte(hostname + "|" + runtime.GOOS + "|" + strconv.Itoa(os.Getuid()))
}

// AutoKeySource picks the OS keyring when one is reachable and falls back
// to the derived backend otherwise (headless hosts, containers, CI).
func AutoKeySource(service, account, dir string) KeySource {
	ks := &KeyringSource{Service: service, Account: account}
	if _, err := keyring.Get(service, account); err == nil || errors.Is(err, keyring.ErrNotFound) {
		return ks
	}
	slog.Debug("OS keyring unavailable, using derived key backend",
		"service", service,
	)
	return &DerivedSource{Dir: dir}
}
