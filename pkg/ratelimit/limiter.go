package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-endpoint token bucket rate limiting for the
// broker REST API. Endpoints have independent quotas (historical vs
// quote), so each key gets its own bucket.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter with the given RPS and burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[key] = limiter
	return limiter
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// Wait blocks until a request for key is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.limiterFor(key).Wait(ctx)
}

// SetRPS updates the request rate for all buckets.
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rps = rps
	for _, limiter := range l.limiters {
		limiter.SetLimit(rate.Limit(rps))
	}
}

// Stats describes the current state of one bucket.
type Stats struct {
	Key             string        `json:"key"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

// Snapshot returns per-key bucket state for diagnostics.
func (l *Limiter) Snapshot() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]Stats, len(l.limiters))
	for key, limiter := range l.limiters {
		res := limiter.Reserve()
		delay := res.Delay()
		res.Cancel()

		stats[key] = Stats{
			Key:             key,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
			Delay:           delay,
		}
	}

	return stats
}
