// Package store defines the persistent result cache shared by the search
// client and the page fetcher. Backends live in sub-packages.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Scopes used by callers. Field results use the canonical field name.
const (
	ScopePage = "page"
)

// Entry is one cached value.
type Entry struct {
	Key       string    `json:"key"`
	Scope     string    `json:"scope"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	HitCount  int64     `json:"hit_count"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats summarises the cache content.
type Stats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Expired int64  `json:"expired"`
	Hits    int64  `json:"hits"`
}

// Cache is the contract every backend implements.
//
// Get returns (nil, nil) on a miss or an expired entry. Put replaces any
// existing value for key atomically. Purge removes expired entries and
// reports how many were dropped.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key, scope string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Normalize case-folds text and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Key derives the cache key for text within scope. Queries that differ only
// in case or whitespace share a key.
func Key(scope, text string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(scope)))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// ExactKey is Key without normalization of text, for case-sensitive values
// such as URLs.
func ExactKey(scope, text string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(scope)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
