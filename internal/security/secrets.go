package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// NewRefreshSecret generates a fresh 256-bit refresh secret, base64url-encoded.
// The raw secret is handed to the client exactly once; only its hash is stored.
func NewRefreshSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns the hex-encoded SHA-256 of a raw refresh secret. The
// result is the token id under which the record is persisted; the raw secret
// never reaches storage.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretHashEqual compares the hash of a presented secret against a stored
// hash in constant time.
func SecretHashEqual(presentedSecret, storedHash string) bool {
	presented := HashSecret(presentedSecret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
