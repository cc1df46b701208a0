package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/sources/fields"
)

const (
	// DefaultReloadInterval is how often the field templates file is re-read
	DefaultReloadInterval = time.Hour
)

// TemplateReloader handles periodic and manual reloading of field templates
type TemplateReloader struct {
	loader        *fields.Loader
	registry      *fields.Registry
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewTemplateReloader creates a new template reloader
func NewTemplateReloader(
	templatesFile string,
	registry *fields.Registry,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *TemplateReloader {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}

	return &TemplateReloader{
		loader:        fields.NewLoader(templatesFile),
		registry:      registry,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the file once, then keeps reloading it until stopped
func (tr *TemplateReloader) Start(ctx context.Context) error {
	if err := tr.Reload(ctx); err != nil {
		return fmt.Errorf("initial template load failed: %w", err)
	}

	ticker := time.NewTicker(tr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := tr.Reload(ctx); err != nil {
					tr.logger.Error("failed to reload field templates",
						logger.Error(err))
				}
			case <-tr.manualTrigger:
				tr.logger.Info("manual reload triggered")
				if err := tr.Reload(ctx); err != nil {
					tr.logger.Error("failed to reload field templates",
						logger.Error(err))
				}
			case <-tr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (tr *TemplateReloader) Stop() {
	close(tr.stopCh)
}

// Reload parses the templates file and swaps it into the registry. On error
// the previous templates stay active.
func (tr *TemplateReloader) Reload(_ context.Context) error {
	tr.logger.Info("reloading field templates",
		logger.String("path", tr.loader.Path()))

	file, err := tr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load field templates: %w", err)
	}

	tr.registry.Apply(file)

	tr.logger.Info("field templates loaded",
		logger.Int("templates", len(file.Templates)),
		logger.Int("fields", len(file.Fields)))

	return nil
}
