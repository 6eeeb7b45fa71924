// Package ratelimit implements the per-origin token bucket that paces
// outbound fetches (§4.H). Each origin gets its own bucket, rate R =
// max_hits_per_sec tokens/sec, burst 1; acquisition is asynchronous and
// fair per-origin (FIFO), independent across origins.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a process-wide, per-origin rate limiter. It is scoped to one
// engine instance and does not persist across waves (§9 "Global state").
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	defaultR rate.Limit
}

// New creates a Limiter whose buckets default to defaultHitsPerSec tokens/
// sec with burst 1, applied to any origin not given an explicit rate via
// SetOriginRate.
func New(defaultHitsPerSec float64) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		defaultR: rate.Limit(defaultHitsPerSec),
	}
}

// SetOriginRate overrides the rate for one origin (scheme+host+port),
// creating its bucket if absent.
func (l *Limiter) SetOriginRate(origin string, hitsPerSec float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[origin] = rate.NewLimiter(rate.Limit(hitsPerSec), 1)
}

func (l *Limiter) bucketFor(origin string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[origin]
	if !ok {
		b = rate.NewLimiter(l.defaultR, 1)
		l.buckets[origin] = b
	}
	return b
}

// Wait blocks until origin's bucket has a token, immediately consuming it,
// or until ctx is canceled. x/time/rate's own reservation queue provides
// FIFO fairness: concurrent waiters on one Limiter are granted tokens in
// call order.
func (l *Limiter) Wait(ctx context.Context, origin string) error {
	return l.bucketFor(origin).Wait(ctx)
}
