package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
)

// MaxRetryAttempts bounds SDS_MAX_RETRY_ATTEMPTS.
const MaxRetryAttempts = 10

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	HandlerTimeout  time.Duration // per-request deadline for /resolve

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Search backends
	InstanceURLs    []string // base URLs tried in order of health
	SearchBackend   string   // "searxng" | "tavily"
	TavilyAPIKey    string   // required when SearchBackend is tavily
	Language        string
	ResultsPerQuery int
	RequestTimeout  time.Duration // bound on every outbound call

	// Outbound pacing and retry
	RateLimitPerSecond float64
	BurstCapacity      float64
	MinDelay           time.Duration
	MaxRetryAttempts   int
	BackoffBase        time.Duration
	FailureThreshold   int
	CooldownBase       time.Duration
	CooldownMax        time.Duration

	// Result cache
	CacheEnabled       bool
	CacheBackend       string // "sqlite" | "redis" | "memory"
	CachePath          string // sqlite file
	CacheTTL           time.Duration
	CachePurgeInterval time.Duration

	// Page enrichment
	EnrichmentEnabled   bool
	EnrichmentThreshold float64 // (0,1], enrich below this confidence; disable with SDS_ENRICHMENT_ENABLED
	EnrichmentMaxPages  int
	EnrichmentMaxChars  int

	FieldWorkers           int           // fields resolved concurrently per call
	FieldTemplatesFile     string        // optional YAML override, empty = built-in templates
	TemplateReloadInterval time.Duration // interval to re-read FieldTemplatesFile

	// Redis (cache backend "redis" only)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedHosts  []string // optional, restrict admin routes to specific Host headers
	AllowedCIDRS  []string // optional, restrict admin routes to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy    bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	InboundBurst  int      // per-client burst on /resolve
	InboundPerMin int      // per-client refill on /resolve
}

// Load reads the environment, after applying a .env file when one exists,
// and validates the result. Invalid settings are reported as *domain.ConfigError.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &domain.ConfigError{Field: ".env", Reason: err.Error()}
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SDS_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SDS_SHUTDOWN_TIMEOUT", 5*time.Second),
		HandlerTimeout:  mustDuration("SDS_HANDLER_TIMEOUT", 2*time.Minute),

		// Logging
		LogLevel:  getenv("SDS_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SDS_PRETTY_LOG", false),

		// Search
		InstanceURLs:    splitAndTrim(getenv("SDS_INSTANCE_URLS", "")),
		SearchBackend:   strings.ToLower(getenv("SDS_SEARCH_BACKEND", "searxng")),
		TavilyAPIKey:    getenv("SDS_TAVILY_API_KEY", ""),
		Language:        getenv("SDS_LANGUAGE", "en"),
		ResultsPerQuery: getenvInt("SDS_RESULTS_PER_QUERY", 3),
		RequestTimeout:  seconds("SDS_REQUEST_TIMEOUT_SECONDS", 30),

		// Pacing and retry
		RateLimitPerSecond: getenvFloat("SDS_RATE_LIMIT_PER_SECOND", 2.0),
		BurstCapacity:      getenvFloat("SDS_BURST_CAPACITY", 5.0),
		MinDelay:           seconds("SDS_MIN_DELAY_SECONDS", 1.0),
		MaxRetryAttempts:   getenvInt("SDS_MAX_RETRY_ATTEMPTS", 3),
		BackoffBase:        seconds("SDS_BACKOFF_BASE_SECONDS", 2.0),
		FailureThreshold:   getenvInt("SDS_FAILURE_THRESHOLD", 3),
		CooldownBase:       mustDuration("SDS_COOLDOWN_BASE", 30*time.Second),
		CooldownMax:        mustDuration("SDS_COOLDOWN_MAX", 10*time.Minute),

		// Cache
		CacheEnabled:       mustBool("SDS_CACHE_ENABLED", true),
		CacheBackend:       strings.ToLower(getenv("SDS_CACHE_BACKEND", CacheSQLite)),
		CachePath:          getenv("SDS_CACHE_PATH", "./data/sdsresolve_cache.db"),
		CacheTTL:           time.Duration(getenvInt("SDS_CACHE_TTL_SECONDS", 604800)) * time.Second,
		CachePurgeInterval: mustDuration("SDS_CACHE_PURGE_INTERVAL", time.Hour),

		// Enrichment
		EnrichmentEnabled:   mustBool("SDS_ENRICHMENT_ENABLED", false),
		EnrichmentThreshold: getenvFloat("SDS_ENRICHMENT_THRESHOLD", 0.4),
		EnrichmentMaxPages:  getenvInt("SDS_ENRICHMENT_MAX_PAGES", 2),
		EnrichmentMaxChars:  getenvInt("SDS_ENRICHMENT_MAX_CHARS", 5000),

		FieldWorkers:           getenvInt("SDS_FIELD_WORKERS", 2),
		FieldTemplatesFile:     getenv("SDS_FIELD_TEMPLATES_FILE", ""),
		TemplateReloadInterval: mustDuration("SDS_TEMPLATE_RELOAD_INTERVAL", time.Hour),

		// Redis settings
		RedisAddr:           getenv("SDS_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("SDS_REDIS_USERNAME", ""),
		RedisPassword:       getenv("SDS_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("SDS_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:  splitAndTrim(getenv("SDS_ALLOWED_HOSTS", "")),
		AllowedCIDRS:  parseAllowedIPs(getenv("SDS_ALLOWED_CIDRS", "")),
		TrustProxy:    mustBool("SDS_TRUST_PROXY", false),
		InboundBurst:  getenvInt("SDS_INBOUND_BURST", 10),
		InboundPerMin: getenvInt("SDS_INBOUND_PER_MIN", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.TavilyAPIKey != "" {
			cfgCopy.TavilyAPIKey = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg, nil
}

// envKeys names the variable behind each validated field in error messages.
var envKeys = map[string]string{
	"InstanceURLs":        "SDS_INSTANCE_URLS",
	"SearchBackend":       "SDS_SEARCH_BACKEND",
	"TavilyAPIKey":        "SDS_TAVILY_API_KEY",
	"ResultsPerQuery":     "SDS_RESULTS_PER_QUERY",
	"RateLimitPerSecond":  "SDS_RATE_LIMIT_PER_SECOND",
	"BurstCapacity":       "SDS_BURST_CAPACITY",
	"MinDelay":            "SDS_MIN_DELAY_SECONDS",
	"MaxRetryAttempts":    "SDS_MAX_RETRY_ATTEMPTS",
	"BackoffBase":         "SDS_BACKOFF_BASE_SECONDS",
	"FailureThreshold":    "SDS_FAILURE_THRESHOLD",
	"CooldownBase":        "SDS_COOLDOWN_BASE",
	"CooldownMax":         "SDS_COOLDOWN_MAX",
	"RequestTimeout":      "SDS_REQUEST_TIMEOUT_SECONDS",
	"CacheBackend":        "SDS_CACHE_BACKEND",
	"CachePath":           "SDS_CACHE_PATH",
	"CacheTTL":            "SDS_CACHE_TTL_SECONDS",
	"EnrichmentThreshold": "SDS_ENRICHMENT_THRESHOLD",
	"EnrichmentMaxPages":  "SDS_ENRICHMENT_MAX_PAGES",
	"EnrichmentMaxChars":  "SDS_ENRICHMENT_MAX_CHARS",
	"FieldWorkers":        "SDS_FIELD_WORKERS",
	"RedisAddr":           "SDS_REDIS_ADDR",
}

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	redisCache := c.CacheEnabled && c.CacheBackend == CacheRedis

	err := validation.ValidateStruct(c,
		validation.Field(&c.InstanceURLs, validation.Required.Error("at least one instance is required"),
			validation.Each(validation.By(baseURL))),
		validation.Field(&c.SearchBackend, validation.In("searxng", "tavily")),
		validation.Field(&c.TavilyAPIKey, validation.When(c.SearchBackend == "tavily", validation.Required)),
		validation.Field(&c.ResultsPerQuery, validation.Required, validation.Min(1), validation.Max(20)),
		validation.Field(&c.RateLimitPerSecond, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.BurstCapacity, validation.Required, validation.Min(1.0)),
		validation.Field(&c.MinDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetryAttempts, validation.Required, validation.Min(1), validation.Max(MaxRetryAttempts)),
		validation.Field(&c.BackoffBase, validation.Min(time.Duration(0))),
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.CooldownBase, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CooldownMax, validation.Min(c.CooldownBase)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.CacheBackend, validation.In(CacheSQLite, CacheRedis, CacheMemory)),
		validation.Field(&c.CachePath, validation.When(c.CacheEnabled && c.CacheBackend == CacheSQLite, validation.Required)),
		validation.Field(&c.CacheTTL, validation.When(c.CacheEnabled, validation.Required, validation.Min(time.Second))),
		validation.Field(&c.EnrichmentThreshold, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.EnrichmentMaxPages, validation.Min(0)),
		validation.Field(&c.EnrichmentMaxChars, validation.Min(0)),
		validation.Field(&c.FieldWorkers, validation.Required, validation.Min(1)),
		validation.Field(&c.RedisAddr, validation.When(redisCache, validation.Required)),
	)
	if err == nil {
		return nil
	}
	return asConfigError(err)
}

func baseURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) base URL", s)
	}
	return nil
}

// asConfigError reports the first failing field (alphabetically) so the
// message is stable.
func asConfigError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &domain.ConfigError{Reason: err.Error()}
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	field := keys[0]
	name := field
	if env, ok := envKeys[field]; ok {
		name = env
	}
	return &domain.ConfigError{Field: name, Reason: errs[field].Error()}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// seconds reads a float number of seconds, ex: "1.5" -> 1500ms.
func seconds(key string, def float64) time.Duration {
	return time.Duration(getenvFloat(key, def) * float64(time.Second))
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
