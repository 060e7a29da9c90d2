// Package ratelimit implements the in-process sliding-window rate limiter
// guarding every endpoint.
package ratelimit

import (
	"sync"
	"time"
)

// retention is how long timestamps survive before Cleanup evicts them; it
// bounds memory for keys that stop making requests.
const retention = time.Hour

// Limiter tracks request timestamps per caller key under one mutex. The
// critical section is a few map and slice operations, so a single
// coarse-grained lock stays in the microsecond range at this request rate;
// it must never be held across a store call.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

func New() *Limiter {
	return &Limiter{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow evicts timestamps older than the window for key, then admits the
// request iff fewer than max remain, recording a new timestamp on admission.
func (l *Limiter) Allow(key string, max int, window time.Duration) bool {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	times := evictBefore(l.requests[key], cutoff)
	if len(times) >= max {
		l.requests[key] = times
		return false
	}
	l.requests[key] = append(times, now)
	return true
}

// Cleanup evicts timestamps older than the retention horizon across all keys
// and drops keys left empty. The surrounding service invokes it periodically
// (hourly); the limiter owns no timer itself.
func (l *Limiter) Cleanup() {
	cutoff := l.now().Add(-retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, times := range l.requests {
		times = evictBefore(times, cutoff)
		if len(times) == 0 {
			delete(l.requests, key)
			continue
		}
		l.requests[key] = times
	}
}

// evictBefore drops leading timestamps older than cutoff. Timestamps are
// appended in order, so only the front can expire.
func evictBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times); i++ {
		if !times[i].Before(cutoff) {
			break
		}
	}
	return times[i:]
}
