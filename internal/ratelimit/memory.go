package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryLimiter keeps per-key attempt timestamps in a bounded LRU whose
// entries expire one window after their last write.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	cache  *expirable.LRU[string, []time.Time]
	now    func() time.Time
}

// NewMemoryLimiter allows max attempts per window for at most maxKeys keys.
func NewMemoryLimiter(max int, window time.Duration, maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryLimiter{
		max:    max,
		window: window,
		cache:  expirable.NewLRU[string, []time.Time](maxKeys, nil, window),
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	previous, _ := m.cache.Get(key)
	recent := make([]time.Time, 0, len(previous)+1)
	for _, ts := range previous {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= m.max {
		m.cache.Add(key, recent)
		return false, nil
	}

	m.cache.Add(key, append(recent, now))
	return true, nil
}
