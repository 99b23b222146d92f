package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/Manonp59/prbmg/pkg/models"
)

// APIKeyHeader carries the shared service key.
const APIKeyHeader = "X-API-Key"

// DefaultExemptPaths are documentation paths reachable without a key.
var DefaultExemptPaths = []string{"/docs", "/openapi.json"}

// KeyAuth compares a presented key against a configured shared secret.
type KeyAuth struct {
	secret []byte
	exempt map[string]bool
}

// NewKeyAuth creates a KeyAuth. With no exempt paths given,
// DefaultExemptPaths are used.
func NewKeyAuth(secret string, exempt ...string) *KeyAuth {
	if len(exempt) == 0 {
		exempt = DefaultExemptPaths
	}
	set := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		set[p] = true
	}
	return &KeyAuth{secret: []byte(secret), exempt: set}
}

// Check returns models.ErrUnauthorized unless presented equals the secret
// byte for byte. An unconfigured secret rejects every key.
func (k *KeyAuth) Check(presented string) error {
	if len(k.secret) == 0 || presented == "" {
		return models.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(presented), k.secret) != 1 {
		return models.ErrUnauthorized
	}
	return nil
}

// Exempt reports whether path may be served without a key.
func (k *KeyAuth) Exempt(path string) bool {
	return k.exempt[path]
}

// Fingerprint returns a short, non-reversible identifier for a credential,
// safe to use in logs and cache keys.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])[:12]
}
