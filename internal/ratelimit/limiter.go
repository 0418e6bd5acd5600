// Package ratelimit paces per-session inbound control traffic. A Client
// Session's watch/unwatch messages are rate-limited independently per
// session, the same token-bucket idiom internal/watch's poll backend
// uses for its own ticker (golang.org/x/time/rate), just keyed by
// session ID rather than applied to a single file.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// SessionLimiter rate-limits by an arbitrary string key (a session ID,
// in this repo). Each key gets its own independent token bucket, so one
// session flooding watch/unwatch messages cannot consume another
// session's allowance.
type SessionLimiter struct {
	ratePerSecond int
	burst         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSessionLimiter creates a limiter that allows ratePerSecond messages
// per second per key, with burst set aside for short spikes.
func NewSessionLimiter(ratePerSecond, burst int) *SessionLimiter {
	return &SessionLimiter{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the caller identified by key may proceed right
// now, consuming one token from its bucket if so.
func (l *SessionLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Forget drops key's bucket, releasing its memory once the session it
// identifies has disconnected.
func (l *SessionLimiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}
