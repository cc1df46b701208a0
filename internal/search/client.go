// Package search resolves missing SDS fields by querying the configured
// search backend through the shared limiter, retry and cache layers.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/sdsresolve/internal/backend"
	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/enrich"
	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/retry"
	"github.com/MrSnakeDoc/sdsresolve/internal/sources/fields"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

const (
	DefaultLanguage            = "en"
	DefaultResultsPerQuery     = 3
	DefaultFieldWorkers        = 2
	DefaultMaxQueries          = 3
	DefaultCacheTTL            = 7 * 24 * time.Hour
	DefaultEnrichmentThreshold = 0.4
)

// Search outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeEmpty     = "empty"
	OutcomeExhausted = "exhausted"
	OutcomeFatal     = "fatal"
	OutcomeCancelled = "cancelled"
)

const (
	noteNoIdentifiers = "no identifiers"
	noteCancelled     = "cancelled"
)

// Resolver is what the document pipeline depends on.
type Resolver interface {
	ResolveMissingFields(ctx context.Context, ids domain.Identifiers, fieldNames []string) (map[string]domain.FieldResult, error)
}

// Observer receives resolution events, typically a metrics.Recorder.
type Observer interface {
	ObserveSearch(outcome string)
	ObserveCache(result string)
	ObservePages(field string, n int)
	ObserveResolution(field, origin string)
}

type nopObserver struct{}

func (nopObserver) ObserveSearch(string) {}
func (nopObserver) ObserveCache(string) {}
func (nopObserver) ObservePages(string, int) {}
func (nopObserver) ObserveResolution(string, string) {}

type Config struct {
	Language        string
	ResultsPerQuery int
	// MaxQueries bounds how many template variants are tried when a search
	// succeeds without a usable hit.
	MaxQueries          int
	FieldWorkers        int
	CacheTTL            time.Duration
	EnrichmentEnabled bool
	// EnrichmentThreshold of zero means DefaultEnrichmentThreshold. To never
	// enrich, leave EnrichmentEnabled false.
	EnrichmentThreshold float64
}

func (c *Config) defaults() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = DefaultResultsPerQuery
	}
	if c.MaxQueries <= 0 {
		c.MaxQueries = DefaultMaxQueries
	}
	if c.FieldWorkers <= 0 {
		c.FieldWorkers = DefaultFieldWorkers
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.EnrichmentThreshold <= 0 {
		c.EnrichmentThreshold = DefaultEnrichmentThreshold
	}
}

// Client is the Resolver backed by one search strategy.
type Client struct {
	backend   backend.Backend
	retry     *retry.Controller
	templates *fields.Registry
	cache     store.Cache
	enricher  *enrich.Enricher
	log       logger.Logger
	obs       Observer
	now       func() time.Time
	cfg       Config
}

type Option func(*Client)

// WithCache enables result caching. A nil cache disables it.
func WithCache(c store.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithEnricher sets the page enricher used when EnrichmentEnabled is set.
func WithEnricher(e *enrich.Enricher) Option {
	return func(cl *Client) { cl.enricher = e }
}

func WithLogger(log logger.Logger) Option {
	return func(cl *Client) {
		if log != nil {
			cl.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(cl *Client) {
		if o != nil {
			cl.obs = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// NewClient validates its collaborators. Missing required pieces are
// reported as *domain.ConfigError.
func NewClient(b backend.Backend, rc *retry.Controller, templates *fields.Registry, cfg Config, opts ...Option) (*Client, error) {
	if b == nil {
		return nil, &domain.ConfigError{Field: "backend", Reason: "required"}
	}
	if rc == nil {
		return nil, &domain.ConfigError{Field: "retry", Reason: "required"}
	}
	if cfg.EnrichmentThreshold < 0 || cfg.EnrichmentThreshold > 1 {
		return nil, &domain.ConfigError{Field: "enrichment_threshold", Reason: "must be between 0 and 1"}
	}
	if templates == nil {
		templates = fields.NewRegistry()
	}
	cfg.defaults()

	c := &Client{
		backend:   b,
		retry:     rc,
		templates: templates,
		log:       logger.NewNop(),
		obs:       nopObserver{},
		now:       time.Now,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.EnrichmentEnabled && c.enricher == nil {
		return nil, &domain.ConfigError{Field: "enrichment_enabled", Reason: "no page enricher configured"}
	}
	return c, nil
}

// CacheKey is the result-cache key of a field searched for ids with query.
// The identifiers are part of the key so that two products never share an
// entry, whatever the templates expand to.
func CacheKey(field string, ids domain.Identifiers, query string) string {
	return store.Key(domain.CanonicalField(field), ids.Text()+"\n"+query)
}

// ResolveMissingFields returns one result per requested field name. Per-field
// failures become unresolved results; the only error returned is
// domain.ErrCancelled, in which case every field is marked cancelled.
func (c *Client) ResolveMissingFields(ctx context.Context, ids domain.Identifiers, fieldNames []string) (map[string]domain.FieldResult, error) {
	names := uniqueNames(fieldNames)
	results := make(map[string]domain.FieldResult, len(names))

	if err := ctx.Err(); err != nil {
		return cancelledAll(names), domain.Cancelled(err)
	}
	if ids.IsEmpty() {
		for _, name := range names {
			results[name] = domain.Unresolved(name, noteNoIdentifiers)
		}
		return results, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.cfg.FieldWorkers)

	for _, name := range names {
		g.Go(func() error {
			res := c.resolveField(ctx, ids, name)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return cancelledAll(names), domain.Cancelled(err)
	}
	return results, nil
}

// resolveField never fails; errors are folded into the result.
func (c *Client) resolveField(ctx context.Context, ids domain.Identifiers, name string) domain.FieldResult {
	field := domain.CanonicalField(name)
	log := c.log.With(logger.String("field", field))

	queries := c.templates.Current().Queries(field, ids)
	if len(queries) == 0 {
		return domain.Unresolved(name, noteNoIdentifiers)
	}
	key := CacheKey(field, ids, queries[0])

	if cached, ok := c.lookup(ctx, key, log); ok {
		cached.FieldName = name
		res := cached
		if c.shouldEnrich(res) && res.SourceURL != "" {
			res = c.enrichResult(ctx, field, res, []string{res.SourceURL}, log)
			if res.Origin != domain.OriginCache {
				c.store(ctx, key, field, res, log)
			}
		}
		res.FieldName = name
		c.finish(field, res, log)
		return res
	}

	res, urls := c.search(ctx, field, queries, log)
	if c.shouldEnrich(res) && len(urls) > 0 {
		res = c.enrichResult(ctx, field, res, urls, log)
	}
	res.FieldName = name

	if res.Resolved() {
		c.store(ctx, key, field, res, log)
	}
	c.finish(field, res, log)
	return res
}

func (c *Client) finish(field string, res domain.FieldResult, log logger.Logger) {
	c.obs.ObserveResolution(field, string(res.Origin))
	log.Info("field resolution finished",
		logger.String("origin", string(res.Origin)),
		logger.Float64("confidence", res.Confidence),
		logger.Bool("resolved", res.Resolved()))
}

// search walks the query variants until one yields a guess. It returns the
// best result and the candidate page URLs seen along the way.
func (c *Client) search(ctx context.Context, field string, queries []string, log logger.Logger) (domain.FieldResult, []string) {
	var urls []string
	limit := min(len(queries), c.cfg.MaxQueries)

	for _, text := range queries[:limit] {
		q := domain.NewSearchQuery(text, c.cfg.Language, field, c.now())

		hits, err := c.retry.Execute(ctx, func(ctx context.Context, inst health.Instance) ([]domain.Hit, error) {
			return c.backend.Search(ctx, inst.URL, q, c.cfg.ResultsPerQuery)
		})
		if err != nil {
			return c.failure(field, err, log), urls
		}

		for _, h := range hits {
			if h.URL != "" {
				urls = append(urls, h.URL)
			}
		}
		if res, ok := domain.GuessFromHits(field, hits); ok {
			c.obs.ObserveSearch(OutcomeOK)
			log.Debug("field resolved from search",
				logger.String("query", q.Text),
				logger.String("origin", string(res.Origin)),
				logger.Float64("confidence", res.Confidence))
			return res, urls
		}
		c.obs.ObserveSearch(OutcomeEmpty)
	}
	return domain.Unresolved(field, ""), urls
}

func (c *Client) failure(field string, err error, log logger.Logger) domain.FieldResult {
	var exhausted *domain.ExhaustedError
	switch {
	case domain.IsCancelled(err):
		c.obs.ObserveSearch(OutcomeCancelled)
		return domain.Unresolved(field, noteCancelled)
	case errors.As(err, &exhausted):
		c.obs.ObserveSearch(OutcomeExhausted)
	case domain.IsFatal(err):
		c.obs.ObserveSearch(OutcomeFatal)
	default:
		c.obs.ObserveSearch(OutcomeExhausted)
	}
	log.Warn("field search failed", logger.Error(err))
	return domain.Unresolved(field, err.Error())
}

func (c *Client) shouldEnrich(res domain.FieldResult) bool {
	return c.cfg.EnrichmentEnabled && c.enricher != nil && res.Confidence < c.cfg.EnrichmentThreshold
}

// enrichResult keeps whichever of res and the page-derived result is more
// confident, so enrichment never lowers confidence.
func (c *Client) enrichResult(ctx context.Context, field string, res domain.FieldResult, urls []string, log logger.Logger) domain.FieldResult {
	page, fetched, err := c.enricher.Enrich(ctx, field, urls)
	c.obs.ObservePages(field, fetched)
	if err != nil {
		log.Debug("enrichment interrupted", logger.Error(err))
		return res
	}
	best := domain.Better(res, page)
	if best.Resolved() {
		best.Error = ""
	}
	return best
}

// lookup treats every cache failure as a miss.
func (c *Client) lookup(ctx context.Context, key string, log logger.Logger) (domain.FieldResult, bool) {
	if c.cache == nil {
		return domain.FieldResult{}, false
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		c.obs.ObserveCache("error")
		log.Warn("cache read failed", logger.Error(err))
		return domain.FieldResult{}, false
	}
	if entry == nil {
		c.obs.ObserveCache("miss")
		return domain.FieldResult{}, false
	}

	var res domain.FieldResult
	if err := json.Unmarshal(entry.Value, &res); err != nil || res.Value == "" {
		c.obs.ObserveCache("error")
		log.Warn("cache entry unreadable", logger.String("key", key))
		return domain.FieldResult{}, false
	}
	c.obs.ObserveCache("hit")
	res.Origin = domain.OriginCache
	res.Error = ""
	return res, true
}

// store overwrites the previous entry, even when res is less confident.
func (c *Client) store(ctx context.Context, key, field string, res domain.FieldResult, log logger.Logger) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		log.Warn("cache encode failed", logger.Error(err))
		return
	}
	if err := c.cache.Put(ctx, key, field, payload, c.cfg.CacheTTL); err != nil {
		log.Warn("cache write failed", logger.Error(err))
	}
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func cancelledAll(names []string) map[string]domain.FieldResult {
	out := make(map[string]domain.FieldResult, len(names))
	for _, n := range names {
		out[n] = domain.Unresolved(n, noteCancelled)
	}
	return out
}
