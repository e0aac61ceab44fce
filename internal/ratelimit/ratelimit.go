// Package ratelimit provides sliding-window submission limiters keyed by
// client identity. State is best effort and may be lost on restart.
package ratelimit

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyKey is returned when the client identity could not be resolved.
var ErrEmptyKey = errors.New("rate limit key is empty")

// Limiter records one attempt for key and reports whether it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
