package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
)

const (
	// DefaultPurgeInterval is how often expired cache entries are swept
	DefaultPurgeInterval = time.Hour
)

// CachePurger removes expired entries from the result cache. Reads already
// ignore expired entries; the sweep only reclaims storage.
type CachePurger struct {
	cache    store.Cache
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCachePurger creates a new cache purger
func NewCachePurger(cache store.Cache, log logger.Logger, interval time.Duration) *CachePurger {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}

	return &CachePurger{
		cache:    cache,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic purge
func (cp *CachePurger) Start(ctx context.Context) error {
	// Run immediately on start
	if _, err := cp.Purge(ctx); err != nil {
		cp.logger.Warn("initial cache purge failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(cp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := cp.Purge(ctx); err != nil {
					cp.logger.Error("cache purge failed",
						logger.Error(err))
				}
			case <-cp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the purger
func (cp *CachePurger) Stop() {
	close(cp.stopCh)
}

// Purge drops expired entries and returns how many were removed
func (cp *CachePurger) Purge(ctx context.Context) (int64, error) {
	removed, err := cp.cache.Purge(ctx)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		cp.logger.Info("cache purge completed",
			logger.Int("removed", int(removed)))
	} else {
		cp.logger.Debug("no expired cache entries")
	}

	return removed, nil
}
