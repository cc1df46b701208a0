package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/memory"
)

func TestCachePurger_Purge(t *testing.T) {
	log := logger.New("error", false)
	ctx := context.Background()

	now := time.Now()
	clock := func() time.Time { return now }
	cache := memory.New(clock)

	// Two short-lived entries and one that outlives the clock advance
	_ = cache.Put(ctx, "a", "un_number", []byte(`{}`), time.Minute)
	_ = cache.Put(ctx, "b", "cas_number", []byte(`{}`), time.Minute)
	_ = cache.Put(ctx, "c", "page", []byte(`text`), 48*time.Hour)

	now = now.Add(time.Hour)

	cp := NewCachePurger(cache, log, time.Hour)
	removed, err := cp.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 entries purged, got %d", removed)
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("Expected 1 entry left, got %d", stats.Entries)
	}

	// A second pass has nothing to do
	if removed, _ := cp.Purge(ctx); removed != 0 {
		t.Errorf("Expected no-op purge, got %d", removed)
	}
}

func TestCachePurger_StartRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	cache := memory.New(func() time.Time { return now })
	_ = cache.Put(ctx, "a", "un_number", []byte(`{}`), time.Second)
	now = now.Add(time.Minute)

	cp := NewCachePurger(cache, logger.NewNop(), time.Hour)
	if err := cp.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer cp.Stop()

	if cache.LastPurge().IsZero() {
		t.Error("Expected purge on start")
	}
	if stats, _ := cache.Stats(ctx); stats.Entries != 0 {
		t.Errorf("Expected expired entry removed on start, got %d", stats.Entries)
	}
}
