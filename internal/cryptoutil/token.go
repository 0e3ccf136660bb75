package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// TokenPrefix marks publish tokens so they are recognisable in config and
// secret scanners.
const TokenPrefix = "pub_"

// tokenBytes is the entropy of a minted token.
const tokenBytes = 32

// NewToken returns a fresh random publish token.
func NewToken() (string, error) {
	b, err := RandomBytes(tokenBytes)
	if err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomBytes reads n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, xerrors.Wrap(err, "read random bytes")
	}
	return b, nil
}

// RandomHex returns 2n lowercase hex characters of randomness.
func RandomHex(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken is the irreversible form of a token that is safe to persist.
// Surrounding whitespace is ignored so a pasted token still matches.
func HashToken(token string) string {
	return SHA256Hex([]byte(strings.TrimSpace(token)))
}

// SHA256Hex computes the SHA-256 hash of data as lowercase hex.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SecretEqual compares two secrets in constant time. Both sides are hashed
// first so the comparison does not leak the configured secret's length.
func SecretEqual(given, want string) bool {
	if want == "" {
		return false
	}
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
