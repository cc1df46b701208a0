// Package storetest holds the behaviour checks every store.Cache backend
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

// Harness is a fresh backend plus a way to move its clock forward.
type Harness struct {
	Cache   store.Cache
	Advance func(d time.Duration)
}

// Run executes the shared cases. newHarness must return an empty cache.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Run("miss", func(t *testing.T) {
		h := newHarness(t)
		e, err := h.Cache.Get(context.Background(), store.Key("un_number", "nothing"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if e != nil {
			t.Fatalf("expected miss, got %+v", e)
		}
	})

	t.Run("put get", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := store.Key("un_number", "ethanol un number")

		if err := h.Cache.Put(ctx, key, "un_number", []byte(`{"value":"1170"}`), time.Hour); err != nil {
			t.Fatalf("Put: %v", err)
		}
		e, err := h.Cache.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if e == nil {
			t.Fatal("expected hit")
		}
		if !bytes.Equal(e.Value, []byte(`{"value":"1170"}`)) {
			t.Errorf("unexpected value %q", e.Value)
		}
		if e.Scope != "un_number" {
			t.Errorf("unexpected scope %q", e.Scope)
		}
		if e.HitCount != 1 {
			t.Errorf("expected hit count 1, got %d", e.HitCount)
		}
		if !e.ExpiresAt.After(e.CreatedAt) {
			t.Errorf("expires_at %v not after created_at %v", e.ExpiresAt, e.CreatedAt)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := store.Key("cas_number", "ethanol")

		mustPut(t, h.Cache, key, "old", time.Hour)
		mustPut(t, h.Cache, key, "new", time.Hour)

		e, err := h.Cache.Get(ctx, key)
		if err != nil || e == nil {
			t.Fatalf("Get: %v %v", e, err)
		}
		if string(e.Value) != "new" {
			t.Errorf("expected latest value, got %q", e.Value)
		}
	})

	t.Run("lazy expiry", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := store.Key("un_number", "ethanol")

		mustPut(t, h.Cache, key, "1170", time.Minute)
		h.Advance(2 * time.Minute)

		e, err := h.Cache.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if e != nil {
			t.Fatalf("expired entry returned: %+v", e)
		}
	})

	t.Run("delete", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := store.Key("un_number", "ethanol")

		mustPut(t, h.Cache, key, "1170", time.Hour)
		if err := h.Cache.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if e, _ := h.Cache.Get(ctx, key); e != nil {
			t.Fatal("deleted entry still present")
		}
	})

	t.Run("purge and stats", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		mustPut(t, h.Cache, store.Key("a", "short"), "x", time.Minute)
		mustPut(t, h.Cache, store.Key("b", "short"), "x", time.Minute)
		mustPut(t, h.Cache, store.Key("c", "long"), "x", 24*time.Hour)
		if _, err := h.Cache.Get(ctx, store.Key("c", "long")); err != nil {
			t.Fatal(err)
		}

		h.Advance(time.Hour)

		removed, err := h.Cache.Purge(ctx)
		if err != nil {
			t.Fatalf("Purge: %v", err)
		}
		if removed != 2 {
			t.Errorf("expected 2 purged entries, got %d", removed)
		}

		st, err := h.Cache.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Entries != 1 || st.Hits != 1 || st.Expired != 0 {
			t.Errorf("unexpected stats %+v", st)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := store.Key("un_number", "race")

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := h.Cache.Put(ctx, key, "un_number", []byte("1170"), time.Hour); err != nil {
					t.Errorf("Put: %v", err)
				}
			}()
		}
		wg.Wait()

		e, err := h.Cache.Get(ctx, key)
		if err != nil || e == nil || string(e.Value) != "1170" {
			t.Fatalf("unexpected entry %+v err=%v", e, err)
		}
	})
}

func mustPut(t *testing.T, c store.Cache, key, value string, ttl time.Duration) {
	t.Helper()
	if err := c.Put(context.Background(), key, "test", []byte(value), ttl); err != nil {
		t.Fatalf("Put: %v", err)
	}
}
