package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// GenerateCSRF derives a per-session token so it can be recomputed from the
// session id without storing extra state.
func GenerateCSRF(key, sessionID string) (string, error) {
	if key == "" {
		return "", errors.New("empty csrf key")
	}
	m := hmac.New(sha256.New, []byte(key))
	_, _ = m.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil)), nil
}

func CSRFEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
