package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
	"github.com/redis/go-redis/v9"
)

// Get retrieves a cache entry. Missing or expired entries are a miss.
func (s *Store) Get(ctx context.Context, key string) (*store.Entry, error) {
	rk := EntryKey(key)
	fields, err := s.client.HGetAll(ctx, rk).Result()
	if err != nil {
		return nil, &domain.CacheError{Op: "get", Err: err}
	}
	if len(fields) == 0 {
		return nil, nil // Cache miss
	}

	e, err := decodeEntry(key, fields)
	if err != nil {
		return nil, &domain.CacheError{Op: "get", Err: err}
	}
	if e.Expired(s.now()) {
		return nil, nil
	}

	hits, err := s.recordHit(ctx, rk)
	if err != nil {
		return nil, &domain.CacheError{Op: "get", Err: err}
	}
	if hits < 0 {
		return nil, nil // evicted after the read
	}
	e.HitCount = hits
	return e, nil
}

// hitScript increments the hit counter only while the hash exists, so an
// eviction between HGETALL and the increment leaves nothing behind.
var hitScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`)

// recordHit returns the new hit count, or -1 when the entry is gone.
func (s *Store) recordHit(ctx context.Context, rk string) (int64, error) {
	return hitScript.Run(ctx, s.client, []string{rk}, fieldHitCount).Int64()
}

// Put stores a cache entry in one MULTI/EXEC transaction
func (s *Store) Put(ctx context.Context, key, scope string, value []byte, ttl time.Duration) error {
	now := s.now()
	rk := EntryKey(key)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rk)
		pipe.HSet(ctx, rk, map[string]interface{}{
			fieldScope:     scope,
			fieldValue:     value,
			fieldCreatedAt: now.UnixMilli(),
			fieldExpiresAt: now.Add(ttl).UnixMilli(),
			fieldHitCount:  0,
		})
		if ttl > 0 {
			pipe.Expire(ctx, rk, ttl)
		}
		pipe.SAdd(ctx, AllEntriesKey(), key)
		return nil
	})
	if err != nil {
		return &domain.CacheError{Op: "put", Err: fmt.Errorf("failed to cache entry: %w", err)}
	}
	return nil
}

// Delete removes a cache entry
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, EntryKey(key))
		pipe.SRem(ctx, AllEntriesKey(), key)
		return nil
	})
	if err != nil {
		return &domain.CacheError{Op: "delete", Err: err}
	}
	return nil
}

// Purge drops expired entries and index members whose hash Redis already evicted
func (s *Store) Purge(ctx context.Context) (int64, error) {
	keys, err := s.client.SMembers(ctx, AllEntriesKey()).Result()
	if err != nil {
		return 0, &domain.CacheError{Op: "purge", Err: err}
	}

	now := s.now()
	var removed int64
	for _, key := range keys {
		raw, err := s.client.HGet(ctx, EntryKey(key), fieldExpiresAt).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return removed, &domain.CacheError{Op: "purge", Err: err}
		}
		if err == nil {
			ms, perr := strconv.ParseInt(raw, 10, 64)
			if perr == nil && !now.After(time.UnixMilli(ms)) {
				continue
			}
		}
		if err := s.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Stats walks the index set and sums hit counters
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{Backend: "redis"}
	keys, err := s.client.SMembers(ctx, AllEntriesKey()).Result()
	if err != nil {
		return st, &domain.CacheError{Op: "stats", Err: err}
	}

	now := s.now()
	for _, key := range keys {
		vals, err := s.client.HMGet(ctx, EntryKey(key), fieldExpiresAt, fieldHitCount).Result()
		if err != nil {
			return st, &domain.CacheError{Op: "stats", Err: err}
		}
		if vals[0] == nil {
			continue
		}
		st.Entries++
		if ms, ok := parseInt(vals[0]); ok && now.After(time.UnixMilli(ms)) {
			st.Expired++
		}
		if hits, ok := parseInt(vals[1]); ok {
			st.Hits += hits
		}
	}
	return st, nil
}

func decodeEntry(key string, fields map[string]string) (*store.Entry, error) {
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldCreatedAt, err)
	}
	expires, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", fieldExpiresAt, err)
	}
	hits, _ := strconv.ParseInt(fields[fieldHitCount], 10, 64)

	return &store.Entry{
		Key:       key,
		Scope:     fields[fieldScope],
		Value:     []byte(fields[fieldValue]),
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expires),
		HitCount:  hits,
	}, nil
}

func parseInt(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
