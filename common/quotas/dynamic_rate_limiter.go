package quotas

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	defaultRefreshInterval = time.Minute
	defaultRateBurstRatio  = 2
)

type (
	// RateFn returns the current rate per second.
	RateFn func() float64

	// BurstFn returns the current burst.
	BurstFn func() int

	// DynamicRateLimiter is a rate limiter that picks up rate and burst changes
	// from dynamic config. The backing limiter is refreshed at most once per
	// refresh interval, on the calling goroutine.
	DynamicRateLimiter struct {
		rateFn          RateFn
		burstFn         BurstFn
		refreshInterval time.Duration

		nextRefresh atomic.Int64 // unix nanos
		rateLimiter *RateLimiterImpl
	}
)

var _ RateLimiter = (*DynamicRateLimiter)(nil)

// NewDynamicRateLimiter returns a rate limiter which handles dynamic config.
func NewDynamicRateLimiter(
	rateFn RateFn,
	burstFn BurstFn,
	refreshInterval time.Duration,
) *DynamicRateLimiter {
	limiter := &DynamicRateLimiter{
		rateFn:          rateFn,
		burstFn:         burstFn,
		refreshInterval: refreshInterval,
		rateLimiter:     NewRateLimiter(rateFn(), burstFn()),
	}
	limiter.nextRefresh.Store(time.Now().Add(refreshInterval).UnixNano())
	return limiter
}

// NewDefaultIncomingRateLimiter returns a dynamic rate limiter with the
// default burst ratio for incoming traffic.
func NewDefaultIncomingRateLimiter(rateFn RateFn) *DynamicRateLimiter {
	return NewDynamicRateLimiter(
		rateFn,
		func() int {
			burst := defaultRateBurstRatio * int(rateFn())
			if burst < 1 {
				burst = 1
			}
			return burst
		},
		defaultRefreshInterval,
	)
}

func (d *DynamicRateLimiter) Allow() bool {
	d.maybeRefresh()
	return d.rateLimiter.Allow()
}

func (d *DynamicRateLimiter) Wait(ctx context.Context) error {
	d.maybeRefresh()
	return d.rateLimiter.Wait(ctx)
}

func (d *DynamicRateLimiter) Rate() float64 {
	return d.rateLimiter.Rate()
}

func (d *DynamicRateLimiter) Burst() int {
	return d.rateLimiter.Burst()
}

func (d *DynamicRateLimiter) maybeRefresh() {
	now := time.Now().UnixNano()
	next := d.nextRefresh.Load()
	if now < next || !d.nextRefresh.CompareAndSwap(next, now+d.refreshInterval.Nanoseconds()) {
		return
	}

	d.rateLimiter.SetRPS(d.rateFn())
	d.rateLimiter.SetBurst(d.burstFn())
}
