package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/store"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/storetest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewStore(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Harness {
		s, _ := newTestStore(t)
		clk := &clock{t: time.Now()}
		s.WithClock(clk.Now)
		// only the store clock moves, so Redis keeps the hashes for Purge to find
		return storetest.Harness{Cache: s, Advance: clk.Advance}
	})
}

func TestStore_NativeExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("un_number", "ethanol")

	if err := s.Put(ctx, key, "un_number", []byte("1170"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL(EntryKey(key)); ttl != time.Minute {
		t.Errorf("expected redis ttl of 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists(EntryKey(key)) {
		t.Fatal("redis should have evicted the hash")
	}

	// the index member is left behind until the next purge
	removed, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected stale index member purged, got %d", removed)
	}
	if ok, _ := mr.SIsMember(AllEntriesKey(), key); ok {
		t.Error("index still references evicted entry")
	}
}

func TestStore_Ping(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestStore_HitOnEvictedEntryLeavesNoHash(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := store.Key("un_number", "ethanol")

	hits, err := s.recordHit(ctx, EntryKey(key))
	if err != nil {
		t.Fatalf("recordHit: %v", err)
	}
	if hits != -1 {
		t.Errorf("hits = %d, want -1 for a missing entry", hits)
	}
	if mr.Exists(EntryKey(key)) {
		t.Fatal("hit counter must not recreate an evicted hash")
	}

	if err := s.Put(ctx, key, "un_number", []byte("1170"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, err := s.Get(ctx, key)
	if err != nil || e == nil {
		t.Fatalf("Get: %v, %v", e, err)
	}
	if e.HitCount != 1 || string(e.Value) != "1170" {
		t.Errorf("unexpected entry %+v", e)
	}
}
