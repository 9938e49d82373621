package handlers

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per user.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows each user rps sends per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether userID may send now and consumes a token if so.
func (l *RateLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
