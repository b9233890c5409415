package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter throttles repeated requests sharing a key, such as carrier
// callbacks replayed for the same order code.
type rateLimiter interface {
	Allow(key string) bool
}

// windowLimiter counts hits per key inside a fixed window. Single-process
// abuse damping only; it makes no distributed quota claims.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu   sync.Mutex
	hits map[string]windowSlot
}

type windowSlot struct {
	count   int
	expires time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		hits:   make(map[string]windowSlot),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.hits[key]
	if !ok || now.After(slot.expires) {
		// Fresh window. Expired slots are swept here so the map stays
		// bounded without a background goroutine.
		for k, s := range l.hits {
			if now.After(s.expires) {
				delete(l.hits, k)
			}
		}
		l.hits[key] = windowSlot{count: 1, expires: now.Add(l.window)}
		return true
	}

	if slot.count >= l.limit {
		return false
	}
	slot.count++
	l.hits[key] = slot
	return true
}
