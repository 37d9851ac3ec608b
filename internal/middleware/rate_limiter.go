package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// keyRateLimiter tracks action rates per key (typically a mutation target)
// with expiration, so a stuck UI cannot replay the same intent in a loop.
type keyRateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyRateLimiter constructs a per-key rate limiter that allows up to
// `actions` events per `window` with an additional burst capacity. Entries
// expire after the provided ttl when no longer used.
func NewKeyRateLimiter(actions int, window time.Duration, burst int, ttl time.Duration) RateLimiter {
	if actions <= 0 {
		actions = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	limit := rate.Every(window / time.Duration(actions))
	return &keyRateLimiter{
		callers: make(map[string]*caller),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *keyRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	c := l.getCallerLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return c.limiter.Allow()
}

func (l *keyRateLimiter) getCallerLocked(key string, now time.Time) *caller {
	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	c := &caller{limiter: limiter, lastSeen: now}
	l.callers[key] = c
	return c
}

func (l *keyRateLimiter) gcLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.callers, key)
		}
	}
}
