package app

import (
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/config"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/memory"
)

type closeCounter struct {
	*memory.Cache
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func validConfig() *config.Config {
	return &config.Config{
		ListenPort:          ":0",
		InstanceURLs:        []string{"https://searx.example"},
		SearchBackend:       "searxng",
		ResultsPerQuery:     3,
		RequestTimeout:      time.Second,
		RateLimitPerSecond:  2,
		BurstCapacity:       5,
		MaxRetryAttempts:    3,
		BackoffBase:         time.Second,
		FailureThreshold:    3,
		CooldownBase:        30 * time.Second,
		CooldownMax:         10 * time.Minute,
		CacheEnabled:        true,
		CacheBackend:        config.CacheMemory,
		CacheTTL:            time.Hour,
		EnrichmentThreshold: 0.4,
		FieldWorkers:        2,
	}
}

func TestAssemble_ClosesCacheOnError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no instances", func(c *config.Config) { c.InstanceURLs = nil }},
		{"bad limiter", func(c *config.Config) { c.RateLimitPerSecond = 0 }},
		{"unknown backend", func(c *config.Config) { c.SearchBackend = "bing" }},
		{"tavily without key", func(c *config.Config) { c.SearchBackend = "tavily" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			cache := &closeCounter{Cache: memory.New(time.Now)}

			if _, err := assemble(cfg, logger.NewNop(), cache); err == nil {
				t.Fatal("expected error")
			}
			if cache.closed != 1 {
				t.Errorf("cache closed %d times, want 1", cache.closed)
			}
		})
	}
}

func TestAssemble_KeepsCacheOpen(t *testing.T) {
	cache := &closeCounter{Cache: memory.New(time.Now)}

	a, err := assemble(validConfig(), logger.NewNop(), cache)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if cache.closed != 0 {
		t.Errorf("cache closed on success")
	}
	if a.cache != cache || a.purger == nil || a.reloader != nil {
		t.Errorf("unexpected wiring %+v", a)
	}
}

func TestAssemble_WithoutCache(t *testing.T) {
	cfg := validConfig()
	cfg.CacheEnabled = false

	a, err := assemble(cfg, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if a.cache != nil || a.purger != nil {
		t.Error("no cache means no purger")
	}
}
