// Package ratelimit provides the token bucket shared by every outbound
// platform request of a run.
package ratelimit

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token bucket throttle over rate.Limiter. Tokens refill
// continuously at Rate per second up to Capacity; fractional tokens
// accumulate so that sustained throughput converges to Rate.
//
// Waiters are served one at a time in the order they obtain the turn. The
// turn holder only takes tokens that have already accrued, so the level
// never goes negative, and a waiter that gives up consumes nothing.
type Bucket struct {
	lim *rate.Limiter

	// turn is a single-slot channel used as a cancellable lock
	turn chan struct{}
	now  func() time.Time
}

// New creates a full bucket. A capacity below 1 is raised to 1; rate must be
// positive.
func New(r float64, capacity int) *Bucket {
	if r <= 0 {
		panic("ratelimit: rate must be positive")
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Bucket{
		lim:  rate.NewLimiter(rate.Limit(r), capacity),
		turn: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// NewPerSecond creates a bucket whose burst equals one second of throughput
func NewPerSecond(r float64) *Bucket {
	return New(r, int(math.Max(1, math.Ceil(r))))
}

// Rate returns the refill rate in tokens per second
func (b *Bucket) Rate() float64 { return float64(b.lim.Limit()) }

// Capacity returns the burst size
func (b *Bucket) Capacity() int { return b.lim.Burst() }

// Tokens returns the current token level
func (b *Bucket) Tokens() float64 {
	return b.lim.TokensAt(b.now())
}

// Acquire blocks until n tokens are available and deducts them. Requests
// larger than the capacity are granted in capacity-sized chunks. The only
// error is the context's.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	capacity := b.Capacity()
	for n > 0 {
		chunk := min(n, capacity)
		if err := b.acquire(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (b *Bucket) acquire(ctx context.Context, n int) error {
	select {
	case b.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.turn }()

	for {
		now := b.now()
		if b.lim.AllowN(now, n) {
			return nil
		}
		timer := time.NewTimer(b.waitFor(now, n))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// waitFor reports how long until n tokens will have accrued
func (b *Bucket) waitFor(now time.Time, n int) time.Duration {
	missing := float64(n) - b.lim.TokensAt(now)
	wait := time.Duration(missing / b.Rate() * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
