package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretSize is the length in bytes of generated HMAC signing secrets.
const SecretSize = 32

// minSecretSize rejects configured secrets too short for HS256.
const minSecretSize = 16

// SigningKey is an HMAC secret plus the id stamped into token headers.
type SigningKey struct {
	ID     string
	Secret []byte
}

// NewSigningKey derives the key id from the secret so ids stay stable across
// restarts without being stored separately.
func NewSigningKey(secret []byte) SigningKey {
	sum := sha256.Sum256(secret)
	return SigningKey{ID: hex.EncodeToString(sum[:4]), Secret: secret}
}

// KeyManager holds the active signing key and any retired keys that are still
// accepted for verification during a rotation.
type KeyManager struct {
	active SigningKey
	byID   map[string]SigningKey
}

// NewKeyManager creates a key manager. previous keys only verify.
func NewKeyManager(active SigningKey, previous ...SigningKey) (*KeyManager, error) {
	if len(active.Secret) < minSecretSize {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretSize)
	}

	km := &KeyManager{
		active: active,
		byID:   map[string]SigningKey{active.ID: active},
	}
	for _, k := range previous {
		if len(k.Secret) < minSecretSize {
			return nil, fmt.Errorf("verification key %s is shorter than %d bytes", k.ID, minSecretSize)
		}
		if _, dup := km.byID[k.ID]; !dup {
			km.byID[k.ID] = k
		}
	}
	return km, nil
}

// Active returns the key used to sign new tokens.
func (km *KeyManager) Active() SigningKey {
	return km.active
}

// Lookup finds a verification key by id.
func (km *KeyManager) Lookup(id string) (SigningKey, bool) {
	k, ok := km.byID[id]
	return k, ok
}

// LoadKeyManager builds a key manager from configuration. A non-empty secret
// wins over the key file; otherwise the key file is read, or generated and
// persisted if it does not exist yet.
func LoadKeyManager(secret, keyFile string, previous []string) (*KeyManager, error) {
	var active SigningKey
	if secret != "" {
		active = NewSigningKey([]byte(secret))
	} else {
		k, err := LoadOrCreateKeyFile(keyFile)
		if err != nil {
			return nil, err
		}
		active = k
	}

	prev := make([]SigningKey, 0, len(previous))
	for _, p := range previous {
		if p = strings.TrimSpace(p); p != "" {
			prev = append(prev, NewSigningKey([]byte(p)))
		}
	}
	return NewKeyManager(active, prev...)
}

// LoadOrCreateKeyFile reads a base64 secret from path, creating the file with a
// fresh random secret when it does not exist.
func LoadOrCreateKeyFile(path string) (SigningKey, error) {
	buf, err := os.ReadFile(path)
	if err == nil {
		secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(buf)))
		if err != nil {
			return SigningKey{}, fmt.Errorf("decode key file: %w", err)
		}
		return NewSigningKey(secret), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return SigningKey{}, fmt.Errorf("read key file: %w", err)
	}

	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return SigningKey{}, fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return SigningKey{}, fmt.Errorf("create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(secret) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return SigningKey{}, fmt.Errorf("write key file: %w", err)
	}
	return NewSigningKey(secret), nil
}
