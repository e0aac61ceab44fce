// Package token generates opaque, unguessable URL-safe tokens.
package token

import (
	"crypto/rand"
	"encoding/base64"
)

// DefaultBytes is the entropy used for reschedule and share tokens.
const DefaultBytes = 24

// New returns a base64url token carrying n random bytes.
func New(n int) (string, error) {
	if n <= 0 {
		n = DefaultBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Generator produces tokens. Services take one so tests can pin values.
type Generator func() (string, error)

// Default generates DefaultBytes-sized tokens.
func Default() (string, error) {
	return New(DefaultBytes)
}
