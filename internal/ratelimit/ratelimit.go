// Package ratelimit applies an optional token-bucket admission limit
// per caller role, ahead of the pool's concurrency bound.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// RoleLimiter keeps one token bucket per caller role. A nil limiter
// allows everything.
type RoleLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a limiter allowing rps requests per second with the
// given burst, per role
func New(rps float64, burst int) *RoleLimiter {
	return &RoleLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one request for the given role may proceed now
func (l *RoleLimiter) Allow(role string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim := l.limiters[role]
	if lim == nil {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[role] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
