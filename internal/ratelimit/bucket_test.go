package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func newTestBucket(t *testing.T, capacity, rate float64, minDelay time.Duration) (*Bucket, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	b, err := New(capacity, rate, minDelay, WithClock(clk.Now), WithSleeper(clk.Sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, clk
}

func TestBucket_BurstThenRefillPace(t *testing.T) {
	b, clk := newTestBucket(t, 5, 2, 0)
	start := clk.Now()

	for i := 0; i < 5; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("burst should not wait, slept %v", clk.sleeps)
	}

	for i := 0; i < 5; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire %d: %v", i+5, err)
		}
	}

	elapsed := clk.Now().Sub(start)
	if elapsed < 2*time.Second {
		t.Errorf("expected at least 2s of waiting, got %v", elapsed)
	}
	for _, d := range clk.sleeps {
		if d != 500*time.Millisecond {
			t.Errorf("expected 500ms waits, got %v", d)
		}
	}
}

func TestBucket_MinDelay(t *testing.T) {
	b, clk := newTestBucket(t, 5, 2, time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	if got := clk.Now().Sub(newFakeClock().Now()); got != 2*time.Second {
		t.Errorf("expected grants spaced by 1s, total %v", got)
	}
}

func TestBucket_TokensStayInBounds(t *testing.T) {
	b, clk := newTestBucket(t, 3, 10, 0)

	clk.Sleep(context.Background(), time.Hour)
	if got := b.Tokens(); got != 3 {
		t.Errorf("tokens should cap at capacity, got %v", got)
	}

	for i := 0; i < 20; i++ {
		if err := b.Acquire(context.Background(), 1.5); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if tok := b.Tokens(); tok < 0 || tok > 3 {
			t.Fatalf("tokens out of range: %v", tok)
		}
	}
}

func TestBucket_CostAboveCapacity(t *testing.T) {
	b, _ := newTestBucket(t, 2, 1, 0)

	err := b.Acquire(context.Background(), 3)
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestBucket_CancelWhileWaiting(t *testing.T) {
	b, err := New(1, 0.001, 0) // real sleeper, refill takes ~17 minutes
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = b.Acquire(ctx, 1)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestBucket_Concurrent(t *testing.T) {
	b, err := New(50, 10000, 0)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Acquire(context.Background(), 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if tok := b.Tokens(); tok < 0 || tok > 50 {
		t.Errorf("tokens out of range: %v", tok)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		capacity float64
		rate     float64
		minDelay time.Duration
	}{
		{"zero capacity", 0, 1, 0},
		{"negative rate", 1, -1, 0},
		{"negative delay", 1, 1, -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.capacity, tt.rate, tt.minDelay); err == nil {
				t.Error("expected error")
			}
		})
	}
}
