// Package ratelimit throttles inbound API clients. The outbound
// broker limiter lives in pkg/ratelimit; this one keys buckets by
// caller and endpoint and drops requests instead of waiting.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a token-bucket map keyed by client identity.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), now: time.Now}
}

// Allow reports whether one token can be consumed for key. An unseen
// key starts with a full bucket of the given capacity.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Prune drops buckets idle longer than maxIdle. Keys are remote
// addresses, so the map grows with every distinct caller.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, b := range l.m {
		if now.Sub(b.last) > maxIdle {
			delete(l.m, k)
			removed++
		}
	}
	return removed
}
