// Package ratelimiter provides per-key token bucket rate limiting on top of
// golang.org/x/time/rate.
//
// The port mapper keys buckets by client IP so that one chatty host
// scanning for instruments cannot starve the others.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultIdleTTL is how long an unused bucket is kept.
const DefaultIdleTTL = 5 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	// now is replaced in tests
	now func() time.Time
}

// New creates a limiter granting requestsPerSecond sustained and burst
// immediate requests per key. requestsPerSecond = 0 disables limiting.
func New(requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		ttl:     DefaultIdleTTL,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	if requestsPerSecond <= 0 {
		l.limit = rate.Inf
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

// SetIdleTTL changes how long idle buckets survive.
func (l *Limiter) SetIdleTTL(ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttl = ttl
}

// Allow consumes one token from key's bucket and reports whether one was
// available.
func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for longer than the TTL, at most once per TTL.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.ttl {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
