package auth

import (
	"sync"
	"time"
)

// RateLimiter is a per-key token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

type tokenBucket struct {
	tokens   int
	lastFill time.Time
}

// NewRateLimiter allows ratePerWindow requests per key per window. A
// non-positive rate allows everything.
func NewRateLimiter(ratePerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: map[string]*tokenBucket{},
		rate:    ratePerWindow,
		window:  window,
		now:     time.Now,
	}
}

// Allow takes a token for key. When none is left it returns how long until
// the next one.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl == nil || rl.rate <= 0 {
		return true, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &tokenBucket{tokens: rl.rate - 1, lastFill: now}
		return true, 0
	}
	if refill := int(float64(now.Sub(b.lastFill)) / float64(rl.window) * float64(rl.rate)); refill > 0 {
		b.tokens = min(rl.rate, b.tokens+refill)
		b.lastFill = now
	}
	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	perToken := rl.window / time.Duration(rl.rate)
	return false, perToken - now.Sub(b.lastFill)%perToken
}

func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}
