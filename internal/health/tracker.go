// Package health tracks the availability of the configured search instances
// and picks the next one to use.
package health

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

const (
	DefaultFailureThreshold = 3
	DefaultCooldownBase     = 30 * time.Second
	DefaultCooldownMax      = 10 * time.Minute
)

// Instance is a copy of one instance's health state.
type Instance struct {
	URL           string    `json:"url"`
	Failures      int       `json:"consecutive_failures"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	DisabledUntil time.Time `json:"disabled_until,omitempty"`
	CoolingDown   bool      `json:"cooling_down"`
}

type state struct {
	url           string
	order         int
	failures      int
	lastSuccessAt time.Time
	disabledUntil time.Time
}

// Tracker remembers failures per instance and applies exponential cool-downs.
type Tracker struct {
	mu        sync.Mutex
	instances []*state
	byURL     map[string]*state
	threshold int
	base      time.Duration
	max       time.Duration
	now       func() time.Time
}

// Config controls the cool-down policy.
type Config struct {
	FailureThreshold int
	CooldownBase     time.Duration
	CooldownMax      time.Duration
	Now              func() time.Time
}

// NewTracker builds a tracker over urls, keeping their configured order.
// Duplicate URLs are collapsed.
func NewTracker(urls []string, cfg Config) (*Tracker, error) {
	if len(urls) == 0 {
		return nil, &domain.ConfigError{Field: "instance_urls", Reason: "at least one instance is required"}
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CooldownBase <= 0 {
		cfg.CooldownBase = DefaultCooldownBase
	}
	if cfg.CooldownMax <= 0 {
		cfg.CooldownMax = DefaultCooldownMax
	}
	if cfg.CooldownMax < cfg.CooldownBase {
		return nil, &domain.ConfigError{Field: "cooldown_max", Reason: "must not be lower than cooldown_base"}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	t := &Tracker{
		byURL:     make(map[string]*state, len(urls)),
		threshold: cfg.FailureThreshold,
		base:      cfg.CooldownBase,
		max:       cfg.CooldownMax,
		now:       cfg.Now,
	}
	for _, u := range urls {
		if u == "" {
			return nil, &domain.ConfigError{Field: "instance_urls", Reason: "empty instance url"}
		}
		if _, dup := t.byURL[u]; dup {
			continue
		}
		s := &state{url: u, order: len(t.instances)}
		t.instances = append(t.instances, s)
		t.byURL[u] = s
	}
	return t, nil
}

// Pick returns the healthiest instance, skipping exclude when another choice
// exists. When every instance is cooling down the one that recovers first is
// returned.
func (t *Tracker) Pick(exclude string) Instance {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if s := t.bestLocked(now, exclude); s != nil {
		return s.snapshot(now)
	}
	if s := t.bestLocked(now, ""); s != nil {
		return s.snapshot(now)
	}

	var soonest *state
	for _, s := range t.instances {
		if s.url == exclude && len(t.instances) > 1 {
			continue
		}
		if soonest == nil || s.disabledUntil.Before(soonest.disabledUntil) {
			soonest = s
		}
	}
	return soonest.snapshot(now)
}

// bestLocked applies: fewest failures, then most recent success, then order.
func (t *Tracker) bestLocked(now time.Time, exclude string) *state {
	var best *state
	for _, s := range t.instances {
		if s.url == exclude || s.coolingDown(now) {
			continue
		}
		if best == nil || s.better(best) {
			best = s
		}
	}
	return best
}

func (s *state) better(o *state) bool {
	if s.failures != o.failures {
		return s.failures < o.failures
	}
	if !s.lastSuccessAt.Equal(o.lastSuccessAt) {
		return s.lastSuccessAt.After(o.lastSuccessAt)
	}
	return s.order < o.order
}

func (s *state) coolingDown(now time.Time) bool {
	return now.Before(s.disabledUntil)
}

func (s *state) snapshot(now time.Time) Instance {
	return Instance{
		URL:           s.url,
		Failures:      s.failures,
		LastSuccessAt: s.lastSuccessAt,
		DisabledUntil: s.disabledUntil,
		CoolingDown:   s.coolingDown(now),
	}
}

// ReportSuccess clears the failure streak of url.
func (t *Tracker) ReportSuccess(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byURL[url]
	if !ok {
		return
	}
	s.failures = 0
	s.disabledUntil = time.Time{}
	s.lastSuccessAt = t.now()
}

// ReportFailure records a failure and returns the cool-down applied, zero when
// the instance stays available.
func (t *Tracker) ReportFailure(url string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byURL[url]
	if !ok {
		return 0
	}
	s.failures++
	if s.failures < t.threshold {
		return 0
	}
	d := t.Cooldown(s.failures)
	s.disabledUntil = t.now().Add(d)
	return d
}

// Cooldown returns min(max, base * 2^(failures-threshold)) for failures at or
// above the threshold.
func (t *Tracker) Cooldown(failures int) time.Duration {
	if failures < t.threshold {
		return 0
	}
	d := t.base
	for i := 0; i < failures-t.threshold; i++ {
		d *= 2
		if d >= t.max {
			return t.max
		}
	}
	if d > t.max {
		return t.max
	}
	return d
}

// Snapshot returns the state of every instance in configured order.
func (t *Tracker) Snapshot() []Instance {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]Instance, 0, len(t.instances))
	for _, s := range t.instances {
		out = append(out, s.snapshot(now))
	}
	return out
}

// Len returns the number of distinct instances.
func (t *Tracker) Len() int { return len(t.instances) }
