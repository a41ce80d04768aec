// Package control wires the client components from configuration and owns
// their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/faceguard/internal/cache"
	"github.com/vietddude/faceguard/internal/capture"
	"github.com/vietddude/faceguard/internal/connectivity"
	"github.com/vietddude/faceguard/internal/core/config"
	"github.com/vietddude/faceguard/internal/core/worker"
	"github.com/vietddude/faceguard/internal/health"
	redisclient "github.com/vietddude/faceguard/internal/infra/redis"
	"github.com/vietddude/faceguard/internal/infra/rpc"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
	"github.com/vietddude/faceguard/internal/infra/rpc/routing"
	"github.com/vietddude/faceguard/internal/infra/storage"
	"github.com/vietddude/faceguard/internal/infra/storage/memory"
	"github.com/vietddude/faceguard/internal/infra/storage/postgres"
	"github.com/vietddude/faceguard/internal/infra/storage/sqlite"
	"github.com/vietddude/faceguard/internal/offline"
	"github.com/vietddude/faceguard/internal/paging"
	"github.com/vietddude/faceguard/internal/remote"
)

// App holds one instance of every client component.
type App struct {
	cfg      config.AppConfig
	store    storage.Store
	router   *routing.Router
	executor *rpc.Executor
	cache    *cache.Cache
	queue    *offline.Queue
	client   *rpc.Client
	service  *remote.Service
	conn     *connectivity.Monitor
	pruner   *worker.Pruner

	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// OpenStore opens the durable store selected by cfg.Storage.Backend.
func OpenStore(ctx context.Context, cfg config.AppConfig) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewMemoryStorage(), nil
	case "sqlite", "":
		return sqlite.Open(cfg.SQLite)
	case "postgres":
		return postgres.Open(ctx, cfg.Database)
	case "redis":
		return redisclient.NewStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// NewApp builds every component and restores the cache and queue from the
// store. The returned App must be closed with Stop.
func NewApp(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Info("Using storage", "backend", cfg.Storage.Backend)

	respCache := cache.New(store, logger)
	if n, err := respCache.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load cache: %w", err)
	} else if n > 0 {
		logger.Info("Restored cached responses", "count", n)
	}

	opts := provider.HTTPOptions{
		Timeout:   cfg.Remote.Timeout,
		Token:     cfg.Remote.Token,
		RateLimit: cfg.Remote.RateLimit,
		Burst:     cfg.Remote.Burst,
	}
	endpoints := []provider.Provider{provider.NewHTTPProvider("primary", cfg.Remote.URL, opts)}
	for i, u := range cfg.Remote.Mirrors {
		endpoints = append(endpoints, provider.NewHTTPProvider(fmt.Sprintf("mirror-%d", i+1), u, opts))
	}
	router := routing.NewRouter(endpoints...)

	executor := rpc.NewExecutor(rpc.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger)

	queue := offline.New(
		offline.Config{MaxRetries: cfg.Queue.MaxRetries},
		store,
		executor.Bind(router),
		respCache,
		logger,
	)
	if err := queue.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load offline queue: %w", err)
	}

	client := rpc.NewClient(router, executor, respCache, queue, rpc.Options{
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	service := remote.NewService(client, remote.Options{
		PageSize: cfg.Search.PageSize,
		ListTTL:  cfg.Cache.ListTTL,
	}, logger)

	conn := connectivity.NewMonitor(router, connectivity.Config{
		Interval: cfg.Connectivity.ProbeInterval,
		Timeout:  cfg.Connectivity.ProbeTimeout,
	}, logger)
	conn.OnRestore(func(ctx context.Context) {
		res, err := queue.Replay(ctx)
		if err != nil {
			logger.Warn("Queue replay interrupted", "error", err)
		}
		if len(res.Succeeded) > 0 || len(res.DeadLettered) > 0 {
			logger.Info("Queue replayed", "succeeded", len(res.Succeeded), "dead_lettered", len(res.DeadLettered))
		}
	})

	healthMon := health.NewMonitor(conn, queue, respCache, router)

	app := &App{
		cfg:       cfg,
		store:     store,
		router:    router,
		executor:  executor,
		cache:     respCache,
		queue:     queue,
		client:    client,
		service:   service,
		conn:      conn,
		pruner:    worker.NewPruner(respCache, cfg.Cache.SweepInterval, logger),
		healthMon: healthMon,
		log:       logger,
	}
	if cfg.Server.Port > 0 {
		app.healthServer = health.NewServer(healthMon, cfg.Server.Port)
	}
	return app, nil
}

// Start launches the background workers. It does not block.
func (a *App) Start(ctx context.Context) error {
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil {
				a.log.Error("Health server failed", "error", err)
			}
		}()
	}

	go a.conn.Start(ctx)
	go a.pruner.Start(ctx)
	return nil
}

// Stop shuts down the health server and releases the store.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping client...")

	var firstErr error
	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := a.router.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) Config() config.AppConfig            { return a.cfg }
func (a *App) Store() storage.Store                { return a.store }
func (a *App) Cache() *cache.Cache                 { return a.cache }
func (a *App) Queue() *offline.Queue               { return a.queue }
func (a *App) Client() *rpc.Client                 { return a.client }
func (a *App) Service() *remote.Service            { return a.service }
func (a *App) Connectivity() *connectivity.Monitor { return a.conn }
func (a *App) Router() *routing.Router             { return a.router }
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// NewSearch returns a list controller over the student listing.
func (a *App) NewSearch() *paging.Controller {
	return paging.NewController(a.service, a.cfg.Search.Debounce, a.log)
}

// NewSession returns a capture session that submits through the service.
func (a *App) NewSession(camera capture.Camera) *capture.Session {
	return capture.NewSession(camera, a.service, a.service, a.log)
}
