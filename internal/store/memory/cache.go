// Package memory is a process-local cache backend. Entries are lost on
// restart; it serves tests and deployments that opt out of persistence.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

// Cache keeps entries in a map guarded by a mutex.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*store.Entry // key -> entry
	lastPurge time.Time
	now       func() time.Time
}

// New creates an empty cache. A nil now uses time.Now.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]*store.Entry),
		now:     now,
	}
}

func (c *Cache) Get(_ context.Context, key string) (*store.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.Expired(c.now()) {
		return nil, nil
	}
	e.HitCount++
	cp := *e
	cp.Value = append([]byte(nil), e.Value...)
	return &cp, nil
}

func (c *Cache) Put(_ context.Context, key, scope string, value []byte, ttl time.Duration) error {
	now := c.now()
	e := &store.Entry{
		Key:       key,
		Scope:     scope,
		Value:     append([]byte(nil), value...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Purge(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var n int64
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	c.lastPurge = now
	return n, nil
}

func (c *Cache) Stats(_ context.Context) (store.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	st := store.Stats{Backend: "memory", Entries: int64(len(c.entries))}
	for _, e := range c.entries {
		if e.Expired(now) {
			st.Expired++
		}
		st.Hits += e.HitCount
	}
	return st, nil
}

// LastPurge returns the time of the most recent Purge.
func (c *Cache) LastPurge() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPurge
}

func (c *Cache) Close() error { return nil }
