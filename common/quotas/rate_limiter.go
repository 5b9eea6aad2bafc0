package quotas

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type (
	// RateLimiter corresponds to basic rate limiting functionality.
	RateLimiter interface {
		// Allow attempts to take a token and returns immediately. It returns true
		// if a token was available.
		Allow() bool

		// Wait blocks until a token becomes available, the context expires, or
		// the wait would exceed the context deadline.
		Wait(ctx context.Context) error

		// Rate returns the current rate per second.
		Rate() float64

		// Burst returns the current burst.
		Burst() int
	}

	// RateLimiterImpl is a wrapper around the golang rate limiter.
	RateLimiterImpl struct {
		sync.RWMutex
		rps     float64
		burst   int
		limiter *rate.Limiter
	}
)

var _ RateLimiter = (*RateLimiterImpl)(nil)

// NewRateLimiter returns a new rate limiter that can handle dynamic
// configuration updates via SetRPS / SetBurst.
func NewRateLimiter(newRPS float64, newBurst int) *RateLimiterImpl {
	return &RateLimiterImpl{
		rps:     newRPS,
		burst:   newBurst,
		limiter: rate.NewLimiter(rate.Limit(newRPS), newBurst),
	}
}

// SetRPS sets the rate of the rate limiter.
func (rl *RateLimiterImpl) SetRPS(rps float64) {
	rl.Lock()
	defer rl.Unlock()

	if rl.rps != rps {
		rl.rps = rps
		rl.limiter.SetLimit(rate.Limit(rps))
	}
}

// SetBurst sets the burst of the rate limiter.
func (rl *RateLimiterImpl) SetBurst(burst int) {
	rl.Lock()
	defer rl.Unlock()

	if rl.burst != burst {
		rl.burst = burst
		rl.limiter.SetBurst(burst)
	}
}

func (rl *RateLimiterImpl) Allow() bool {
	rl.RLock()
	defer rl.RUnlock()
	return rl.limiter.Allow()
}

func (rl *RateLimiterImpl) Wait(ctx context.Context) error {
	rl.RLock()
	limiter := rl.limiter
	rl.RUnlock()
	return limiter.Wait(ctx)
}

func (rl *RateLimiterImpl) Rate() float64 {
	rl.RLock()
	defer rl.RUnlock()
	return rl.rps
}

func (rl *RateLimiterImpl) Burst() int {
	rl.RLock()
	defer rl.RUnlock()
	return rl.burst
}
