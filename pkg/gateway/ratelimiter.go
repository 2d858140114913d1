package gateway

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter implements sliding window rate limiting per key
type RateLimiter struct {
	mu                sync.Mutex
	clock             clock.Clock
	requestsPerMinute int
	requests          map[string][]time.Time
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute per key
func NewRateLimiter(requestsPerMinute int, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		clock:             clk,
		requestsPerMinute: requestsPerMinute,
		requests:          make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is within the limit
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.requestsPerMinute <= 0 {
		return true
	}

	now := r.clock.Now()
	cutoff := now.Add(-time.Minute)

	// Clean up old requests (older than 1 minute)
	valid := r.requests[key][:0]
	for _, reqTime := range r.requests[key] {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}

	if len(valid) >= r.requestsPerMinute {
		r.requests[key] = valid
		return false
	}

	r.requests[key] = append(valid, now)
	return true
}

// Count returns the requests recorded for key in the current window
func (r *RateLimiter) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-time.Minute)
	count := 0
	for _, reqTime := range r.requests[key] {
		if reqTime.After(cutoff) {
			count++
		}
	}
	return count
}
