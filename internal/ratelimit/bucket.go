// Package ratelimit provides the outbound token bucket shared by every
// search and page fetch of a process.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

// Limiter is satisfied by *Bucket. Consumers accept it so tests can swap in a no-op.
type Limiter interface {
	Acquire(ctx context.Context, cost float64) error
}

// Bucket is a token bucket with an additional minimum spacing between grants.
type Bucket struct {
	mu        sync.Mutex
	capacity  float64
	rate      float64 // tokens per second
	minDelay  time.Duration
	tokens    float64
	lastRef   time.Time
	lastGrant time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customises a Bucket.
type Option func(*Bucket)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) { b.now = now }
}

// WithSleeper injects the wait function. It must return ctx.Err() when ctx ends first.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bucket) { b.sleep = sleep }
}

// New creates a full bucket. capacity and rate must be positive.
func New(capacity, rate float64, minDelay time.Duration, opts ...Option) (*Bucket, error) {
	if capacity <= 0 || math.IsNaN(capacity) || math.IsInf(capacity, 0) {
		return nil, &domain.ConfigError{Field: "burst_capacity", Reason: "must be a positive number"}
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, &domain.ConfigError{Field: "rate_limit_per_second", Reason: "must be a positive number"}
	}
	if minDelay < 0 {
		return nil, &domain.ConfigError{Field: "min_delay_seconds", Reason: "must not be negative"}
	}

	b := &Bucket{
		capacity: capacity,
		rate:     rate,
		minDelay: minDelay,
		tokens:   capacity,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastRef = b.now()
	return b, nil
}

// Acquire blocks until cost tokens are available and the minimum delay since
// the previous grant has passed, then deducts them. Waiting honours ctx.
func (b *Bucket) Acquire(ctx context.Context, cost float64) error {
	if cost <= 0 {
		cost = 1
	}
	if cost > b.capacity {
		return &domain.ConfigError{Field: "cost", Reason: "exceeds bucket capacity"}
	}

	for {
		if err := ctx.Err(); err != nil {
			return domain.Cancelled(err)
		}

		wait := b.tryTake(cost)
		if wait <= 0 {
			return nil
		}
		if err := b.sleep(ctx, wait); err != nil {
			return domain.Cancelled(err)
		}
	}
}

// tryTake grants cost tokens or returns how long the caller must wait.
func (b *Bucket) tryTake(cost float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refillLocked(now)

	var wait time.Duration
	if b.tokens < cost {
		wait = time.Duration((cost - b.tokens) / b.rate * float64(time.Second))
		if wait <= 0 {
			wait = time.Millisecond
		}
	}
	if !b.lastGrant.IsZero() {
		if gap := b.minDelay - now.Sub(b.lastGrant); gap > wait {
			wait = gap
		}
	}
	if wait > 0 {
		return wait
	}

	b.tokens -= cost
	if b.tokens < 1e-9 {
		b.tokens = 0
	}
	b.lastGrant = now
	return 0
}

func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRef).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.rate)
	b.lastRef = now
}

// Tokens returns the current token count after refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.now())
	return b.tokens
}

// Capacity returns the bucket size.
func (b *Bucket) Capacity() float64 { return b.capacity }

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlimited is a Limiter that never waits.
type Unlimited struct{}

func (Unlimited) Acquire(ctx context.Context, _ float64) error {
	if err := ctx.Err(); err != nil {
		return domain.Cancelled(err)
	}
	return nil
}
