package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// RandString returns n random bytes encoded as URL-safe base64.
func RandString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
