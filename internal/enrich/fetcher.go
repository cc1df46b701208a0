// Package enrich downloads candidate pages and reduces them to plain text so
// weak search results can be improved from the page body.
package enrich

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/ratelimit"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
	"github.com/MrSnakeDoc/sdsresolve/internal/utils"
)

const (
	DefaultMaxChars = 5000
	DefaultMaxBytes = 5 << 20
	DefaultCacheTTL = 7 * 24 * time.Hour

	maxRedirects     = 5
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// PageFetcher returns the readable text of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Config configures HTTPFetcher.
type Config struct {
	Timeout   time.Duration
	MaxChars  int
	MaxBytes  int64
	CacheTTL  time.Duration
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// HTTPFetcher fetches pages over HTTP, paced by the shared limiter and backed
// by the page scope of the result cache.
type HTTPFetcher struct {
	client  *http.Client
	cfg     Config
	limiter ratelimit.Limiter
	cache   store.Cache // optional
	log     logger.Logger
	text    *extractor
}

// NewHTTPFetcher builds a fetcher. cache may be nil.
func NewHTTPFetcher(cfg Config, limiter ratelimit.Limiter, cache store.Cache, log logger.Logger) *HTTPFetcher {
	cfg.defaults()
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
		cfg:     cfg,
		limiter: limiter,
		cache:   cache,
		log:     log,
		text:    newExtractor(),
	}
}

// Fetch returns at most MaxChars runes of the page text.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &domain.EnrichmentError{URL: pageURL, Err: fmt.Errorf("unsupported url")}
	}

	key := store.ExactKey(store.ScopePage, pageURL)
	if text, ok := f.cached(ctx, key); ok {
		return text, nil
	}

	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return "", err
	}

	text, err := f.download(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.Cancelled(ctx.Err())
		}
		return "", &domain.EnrichmentError{URL: pageURL, Err: err}
	}
	text = domain.Truncate(text, f.cfg.MaxChars)

	if f.cache != nil && text != "" {
		if err := f.cache.Put(ctx, key, store.ScopePage, []byte(text), f.cfg.CacheTTL); err != nil {
			f.log.Warn("page cache write failed", logger.String("url", pageURL), logger.Error(err))
		}
	}
	return text, nil
}

func (f *HTTPFetcher) cached(ctx context.Context, key string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	e, err := f.cache.Get(ctx, key)
	if err != nil {
		f.log.Warn("page cache read failed", logger.Error(err))
		return "", false
	}
	if e == nil {
		return "", false
	}
	return string(e.Value), true
}

func (f *HTTPFetcher) download(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	mediaType := "text/html"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return f.text.Text(string(body), pageURL)
	case strings.HasPrefix(mediaType, "text/"):
		return strings.TrimSpace(string(body)), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}
