package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/backend"
	"github.com/MrSnakeDoc/sdsresolve/internal/config"
	"github.com/MrSnakeDoc/sdsresolve/internal/enrich"
	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/metrics"
	"github.com/MrSnakeDoc/sdsresolve/internal/ratelimit"
	"github.com/MrSnakeDoc/sdsresolve/internal/redis"
	"github.com/MrSnakeDoc/sdsresolve/internal/retry"
	"github.com/MrSnakeDoc/sdsresolve/internal/scheduler"
	"github.com/MrSnakeDoc/sdsresolve/internal/search"
	"github.com/MrSnakeDoc/sdsresolve/internal/sources/fields"
	"github.com/MrSnakeDoc/sdsresolve/internal/store"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/sdsresolve/internal/store/redis"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/sqlite"
	"github.com/MrSnakeDoc/sdsresolve/internal/utils"
	"github.com/MrSnakeDoc/sdsresolve/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	cache    store.Cache // nil when caching is disabled
	purger   *scheduler.CachePurger
	reloader *scheduler.TemplateReloader
}

// New loads the configuration and wires every component. Nothing listens
// until Run is called.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	cache, err := openCache(cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, loggerClient, cache)
}

// assemble builds everything that sits on top of the cache. The cache is
// closed when any of it fails.
func assemble(cfg *config.Config, loggerClient logger.Logger, cache store.Cache) (_ *App, err error) {
	defer func() {
		if err != nil {
			utils.MustClose(cache, "result cache", loggerClient)
		}
	}()

	limiter, err := ratelimit.New(cfg.BurstCapacity, cfg.RateLimitPerSecond, cfg.MinDelay)
	if err != nil {
		return nil, err
	}

	tracker, err := health.NewTracker(cfg.InstanceURLs, health.Config{
		FailureThreshold: cfg.FailureThreshold,
		CooldownBase:     cfg.CooldownBase,
		CooldownMax:      cfg.CooldownMax,
	})
	if err != nil {
		return nil, err
	}

	retries, err := retry.New(tracker, limiter, loggerClient.Named("retry"), retry.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		BackoffBase: cfg.BackoffBase,
	}, retry.WithObserver(metrics.Recorder{}))
	if err != nil {
		return nil, err
	}

	searchBackend, err := backend.New(cfg.SearchBackend, backend.Options{
		Timeout: cfg.RequestTimeout,
		APIKey:  cfg.TavilyAPIKey,
	})
	if err != nil {
		return nil, err
	}

	fetcher := enrich.NewHTTPFetcher(enrich.Config{
		Timeout:  cfg.RequestTimeout,
		MaxChars: cfg.EnrichmentMaxChars,
	}, limiter, cache, loggerClient.Named("fetch"))
	enricher := enrich.NewEnricher(fetcher, cfg.EnrichmentMaxPages, loggerClient.Named("enrich"))

	templates := fields.NewRegistry()

	opts := []search.Option{
		search.WithEnricher(enricher),
		search.WithLogger(loggerClient.Named("search")),
		search.WithObserver(metrics.Recorder{}),
	}
	if cache != nil {
		opts = append(opts, search.WithCache(cache))
	}
	client, err := search.NewClient(searchBackend, retries, templates, search.Config{
		Language:            cfg.Language,
		ResultsPerQuery:     cfg.ResultsPerQuery,
		FieldWorkers:        cfg.FieldWorkers,
		CacheTTL:            cfg.CacheTTL,
		EnrichmentEnabled:   cfg.EnrichmentEnabled,
		EnrichmentThreshold: cfg.EnrichmentThreshold,
	}, opts...)
	if err != nil {
		return nil, err
	}

	var purger *scheduler.CachePurger
	if cache != nil {
		purger = scheduler.NewCachePurger(cache, loggerClient, cfg.CachePurgeInterval)
	}

	// Manual reload is only offered when there is a file to reload
	var reloader *scheduler.TemplateReloader
	var reloadTrigger chan struct{}
	if cfg.FieldTemplatesFile != "" {
		loggerClient.Info("field templates file configured",
			logger.String("file", cfg.FieldTemplatesFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewTemplateReloader(
			cfg.FieldTemplatesFile,
			templates,
			loggerClient,
			cfg.TemplateReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("no field templates file, using built-in templates")
	}

	d := deps.Deps{
		Logger:        loggerClient,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       time.Now,
		AllowedHosts:  cfg.AllowedHosts,
		AllowedCIDRS:  cfg.AllowedCIDRS,
		TrustProxy:    cfg.TrustProxy,
		InboundBurst:  cfg.InboundBurst,
		InboundPerMin: cfg.InboundPerMin,
		Resolver:      client,
		Tracker:       tracker,
		Cache:         cache,
		Templates:     templates,
		ReloadTrigger: reloadTrigger,
	}

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   httpserver.New(cfg, loggerClient, d),
		cache:    cache,
		purger:   purger,
		reloader: reloader,
	}, nil
}

// openCache returns the configured result cache, nil when disabled.
func openCache(cfg *config.Config, log logger.Logger) (store.Cache, error) {
	if !cfg.CacheEnabled {
		log.Info("result cache disabled")
		return nil, nil
	}

	switch cfg.CacheBackend {
	case config.CacheMemory:
		log.Info("using in-memory result cache")
		return memory.New(time.Now), nil

	case config.CacheRedis:
		// fail fast if redis never answers
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.Connect(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return redisstore.NewStore(client), nil

	default:
		log.Info("using sqlite result cache", logger.String("path", cfg.CachePath))
		c, err := sqlite.Open(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting sdsresolve v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer utils.MustClose(a.cache, "result cache", a.logger)

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start template reloader: %w", err)
		}
		a.logger.Info("template reloader started",
			logger.Duration("interval", a.cfg.TemplateReloadInterval))
	}

	if a.purger != nil {
		if err := a.purger.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache purger: %w", err)
		}
		a.logger.Info("cache purger started",
			logger.Duration("interval", a.cfg.CachePurgeInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	if a.purger != nil {
		a.purger.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.logger.Info("✅ sdsresolve stopped cleanly")
	return nil
}
