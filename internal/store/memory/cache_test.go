package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/store"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/storetest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCache(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Harness {
		clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		return storetest.Harness{Cache: New(clk.Now), Advance: clk.Advance}
	})
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	key := store.Key("un_number", "ethanol")

	if err := c.Put(ctx, key, "un_number", []byte("1170"), time.Hour); err != nil {
		t.Fatal(err)
	}
	e, _ := c.Get(ctx, key)
	e.Value[0] = 'X'

	again, _ := c.Get(ctx, key)
	if string(again.Value) != "1170" {
		t.Errorf("caller mutation leaked into cache: %q", again.Value)
	}
	if again.HitCount != 2 {
		t.Errorf("expected 2 hits, got %d", again.HitCount)
	}
}
