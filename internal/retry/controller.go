// Package retry runs a search operation with bounded attempts, exponential
// backoff and instance failover.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/ratelimit"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second

	jitterFraction = 0.15
	minDelay       = 50 * time.Millisecond

	// maxBackoffShift caps the doubling; base * 2^30 is already years.
	maxBackoffShift = 30
)

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
)

// Operation performs one attempt against inst.
type Operation func(ctx context.Context, inst health.Instance) ([]domain.Hit, error)

// Observer receives one call per finished attempt.
type Observer interface {
	ObserveAttempt(instance, outcome string, elapsed time.Duration)
}

type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Controller owns the retry loop. It is safe for concurrent use; each Execute
// call runs its attempts sequentially.
type Controller struct {
	tracker     *health.Tracker
	limiter     ratelimit.Limiter
	log         logger.Logger
	observer    Observer
	maxAttempts int
	base        time.Duration

	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

type Option func(*Controller)

// WithSleeper replaces the backoff wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(c *Controller) { c.rand = f }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// New creates a controller. A nil limiter means no outbound pacing.
func New(tracker *health.Tracker, limiter ratelimit.Limiter, log logger.Logger, cfg Config, opts ...Option) (*Controller, error) {
	if tracker == nil {
		return nil, &domain.ConfigError{Field: "tracker", Reason: "required"}
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxAttempts < 1 {
		return nil, &domain.ConfigError{Field: "max_retry_attempts", Reason: "must be at least 1"}
	}
	if cfg.BackoffBase < 0 {
		return nil, &domain.ConfigError{Field: "backoff_base_seconds", Reason: "must not be negative"}
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	c := &Controller{
		tracker:     tracker,
		limiter:     limiter,
		log:         log,
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.BackoffBase,
		rand:        rand.Float64,
		sleep:       ratelimit.Sleep,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Backoff returns the un-jittered wait before attempt n (n >= 2).
func (c *Controller) Backoff(n int) time.Duration {
	if n < 2 {
		return 0
	}
	shift := min(n-2, maxBackoffShift)
	if c.base > time.Duration(math.MaxInt64)>>shift {
		return time.Duration(math.MaxInt64)
	}
	return c.base << shift
}

// Delay returns Backoff(n) with +/-15% jitter, never below 50ms.
func (c *Controller) Delay(n int) time.Duration {
	if n < 2 {
		return 0
	}
	b := float64(c.Backoff(n))
	jitter := (c.rand()*2 - 1) * jitterFraction
	f := math.Round(b * (1 + jitter))
	if f >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	d := time.Duration(f)
	if d < minDelay {
		d = minDelay
	}
	return d
}

// Execute runs op until it succeeds, fails fatally, the context ends or the
// attempt budget is spent. Each retry avoids the instance that just failed
// when another one is available.
func (c *Controller) Execute(ctx context.Context, op Operation) ([]domain.Hit, error) {
	start := c.now()
	var (
		last     error
		previous string
	)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.Delay(attempt)); err != nil {
				return nil, domain.Cancelled(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, domain.Cancelled(err)
		}

		inst := c.tracker.Pick(previous)
		if err := c.limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}

		began := c.now()
		hits, err := op(ctx, inst)
		elapsed := c.now().Sub(began)

		if err == nil {
			c.tracker.ReportSuccess(inst.URL)
			c.observe(inst.URL, OutcomeSuccess, elapsed)
			return hits, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.Cancelled(ctxErr)
		}
		if domain.IsFatal(err) {
			c.observe(inst.URL, OutcomeFatal, elapsed)
			c.log.Warn("search request rejected",
				logger.String("instance", inst.URL),
				logger.Int("attempt", attempt),
				logger.Error(err))
			return nil, err
		}

		cooldown := c.tracker.ReportFailure(inst.URL)
		c.observe(inst.URL, OutcomeTransient, elapsed)
		c.log.Warn("search attempt failed",
			logger.String("instance", inst.URL),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.maxAttempts),
			logger.Duration("cooldown", cooldown),
			logger.Error(err))

		last = err
		previous = inst.URL
	}

	return nil, &domain.ExhaustedError{
		Attempts: c.maxAttempts,
		Elapsed:  c.now().Sub(start),
		Last:     last,
	}
}

func (c *Controller) observe(instance, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveAttempt(instance, outcome, elapsed)
	}
}
