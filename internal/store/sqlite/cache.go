// Package sqlite is the embedded, restart-durable cache backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	scope      TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	hit_count  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_entries_scope ON cache_entries(scope);
`

// Cache stores entries in a single sqlite table.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Cache)

// WithClock injects the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open creates (if needed) and opens the cache file at path, creating parent
// directories. The journal runs in WAL mode.
func Open(path string, opts ...Option) (*Cache, error) {
	if path == "" {
		return nil, &domain.ConfigError{Field: "cache_path", Reason: "required for the sqlite backend"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite cache: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite cache: open: %w", err)
	}
	// one writer at a time; readers share the same connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache: ping: %w", err)
	}

	c := &Cache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

func (c *Cache) Get(ctx context.Context, key string) (*store.Entry, error) {
	var (
		e                  store.Entry
		created, expiresAt int64
	)
	row := c.db.QueryRowContext(ctx,
		`SELECT key, scope, value, created_at, expires_at, hit_count FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&e.Key, &e.Scope, &e.Value, &created, &expiresAt, &e.HitCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &domain.CacheError{Op: "get", Err: err}
	}
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)

	if e.Expired(c.now()) {
		return nil, nil
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE cache_entries SET hit_count = hit_count + 1 WHERE key = ?`, key); err != nil {
		return nil, &domain.CacheError{Op: "get", Err: err}
	}
	e.HitCount++
	return &e, nil
}

func (c *Cache) Put(ctx context.Context, key, scope string, value []byte, ttl time.Duration) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, scope, value, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET
			scope = excluded.scope,
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = 0`,
		key, scope, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return &domain.CacheError{Op: "put", Err: err}
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return &domain.CacheError{Op: "delete", Err: err}
	}
	return nil
}

func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, c.now().UnixMilli())
	if err != nil {
		return 0, &domain.CacheError{Op: "purge", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.CacheError{Op: "purge", Err: err}
	}
	return n, nil
}

func (c *Cache) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{Backend: "sqlite"}
	row := c.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(hit_count), 0)
		FROM cache_entries`, c.now().UnixMilli())
	if err := row.Scan(&st.Entries, &st.Expired, &st.Hits); err != nil {
		return st, &domain.CacheError{Op: "stats", Err: err}
	}
	return st, nil
}

func (c *Cache) Close() error { return c.db.Close() }
