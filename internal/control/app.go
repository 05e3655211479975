// Package control builds the application from configuration and manages its lifetime.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/deepwiki/internal/core/config"
	"github.com/vietddude/deepwiki/internal/httpapi"
	"github.com/vietddude/deepwiki/internal/infra/cache"
	"github.com/vietddude/deepwiki/internal/infra/rpc"
	"github.com/vietddude/deepwiki/internal/infra/rpc/gate"
	"github.com/vietddude/deepwiki/internal/infra/rpc/routing"
	"github.com/vietddude/deepwiki/internal/infra/rpc/timeout"
	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/metrics"
	"github.com/vietddude/deepwiki/internal/tools"
)

// gateDrainTimeout bounds waiting for outstanding permits once in-flight work is cancelled.
const gateDrainTimeout = 10 * time.Second

// App owns every long-lived component: one admission gate, one connection pool and
// one result store for the whole process.
type App struct {
	// cancelRun aborts request handling and shared fetches.
	cancelRun context.CancelFunc

	cfg     *config.AppConfig
	gate    *gate.Gate
	client  *rpc.Client
	store   cache.Store
	manager *lifecycle.Manager
	tools   *tools.Service
	server  *httpapi.Server
	log     *slog.Logger
}

// NewApp creates the application with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	g, err := gate.New(cfg.Concurrency.MaxInFlight)
	if err != nil {
		return nil, err
	}

	client, err := rpc.NewHTTPClient(RPCConfig(cfg), g, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init remote client: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	manager := lifecycle.New(client, lifecycle.Config{
		PollInterval: cfg.Poll.Interval,
		MaxAttempts:  cfg.Poll.MaxAttempts,
		FetchTimeout: fetchTimeout(cfg),
	}, lifecycle.WithStore(store), lifecycle.WithLogger(log), lifecycle.WithBaseContext(runCtx))

	svc := tools.NewService(manager, client, log)

	server := httpapi.NewServer(cfg.Server, svc, client, log)
	server.SetBaseContext(runCtx)

	return &App{
		cancelRun: cancelRun,
		cfg:       cfg,
		gate:      g,
		client:    client,
		store:     store,
		manager:   manager,
		tools:     svc,
		server:    server,
		log:       log,
	}, nil
}

// fetchTimeout is the worst case for one retried remote call: every attempt uses
// its full budget and every backoff waits the maximum.
func fetchTimeout(cfg *config.AppConfig) time.Duration {
	t := cfg.Timeouts
	attempts := time.Duration(max(cfg.Retry.MaxAttempts, 1))
	return attempts*(t.Pool+t.Connect+t.Write+t.Read) + (attempts-1)*cfg.Retry.MaxDelay
}

// RPCConfig translates the application config into the remote client's config.
func RPCConfig(cfg *config.AppConfig) rpc.Config {
	return rpc.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.APIKey,
		Timeouts: timeout.Policy{
			Connect: cfg.Timeouts.Connect,
			Write:   cfg.Timeouts.Write,
			Read:    cfg.Timeouts.Read,
			Pool:    cfg.Timeouts.Pool,
		},
		Pool: timeout.PoolLimits{
			MaxConns:     cfg.Concurrency.MaxConnections,
			MaxIdleConns: cfg.Concurrency.MaxIdleConnections,
		},
		Retry: routing.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    cfg.Retry.BaseDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			BackoffMultiple: routing.DefaultRetryConfig.BackoffMultiple,
			Jitter:          cfg.Retry.Jitter,
			MaxRetryAfter:   cfg.Retry.MaxRetryAfter,
		},
		RateLimit: cfg.Concurrency.RateLimit,
		RateBurst: cfg.Concurrency.RateBurst,
	}
}

func newStore(ctx context.Context, cfg *config.AppConfig) (cache.Store, error) {
	switch {
	case !cfg.Cache.Enabled:
		slog.Info("Result store disabled")
		return cache.Nop{}, nil
	case cfg.Redis.URL != "":
		store, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis store: %w", err)
		}
		slog.Info("Using Redis result store")
		return store, nil
	default:
		slog.Info("Using in-memory result store", "ttl", cfg.Cache.TTL, "max_entries", cfg.Cache.MaxEntries)
		return cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries), nil
	}
}

// Tools returns the tool service.
func (a *App) Tools() *tools.Service {
	return a.tools
}

// Manager returns the lifecycle manager.
func (a *App) Manager() *lifecycle.Manager {
	return a.manager
}

// Server returns the HTTP API server.
func (a *App) Server() *httpapi.Server {
	return a.server
}

// Start starts the HTTP API and the background metrics updater.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	go a.runMetricsUpdater(ctx)

	a.log.Info("DeepWiki service started",
		"api_url", a.cfg.API.BaseURL,
		"max_in_flight", a.cfg.Concurrency.MaxInFlight,
		"poll_interval", a.cfg.Poll.Interval,
		"poll_max_attempts", a.cfg.Poll.MaxAttempts,
	)
	return nil
}

// Stop shuts the HTTP server down gracefully within ctx. Requests still running when
// ctx ends are cancelled, which aborts their poll loops and releases their permits;
// the gate then drains under its own budget.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping DeepWiki service...")

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		if ctx.Err() == nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		} else {
			a.log.Warn("Shutdown grace period expired, cancelling in-flight requests", "error", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), gateDrainTimeout)
	defer cancel()
	if err := a.Close(drainCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close cancels in-flight work, drains the admission gate within ctx and closes the
// connection pool and store. One-shot commands that never start the server call it
// directly.
func (a *App) Close(ctx context.Context) error {
	a.cancelRun()

	var errs []error
	if err := a.gate.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain admission gate: %w", err))
	}
	if err := a.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close remote client: %w", err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close result store", "error", err)
	}
	return errors.Join(errs...)
}

func (a *App) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.updateMetrics()
		}
	}
}

func (a *App) updateMetrics() {
	h := a.client.Health()
	if h.MonitorStats != nil {
		metrics.ProviderStatus.Set(float64(h.MonitorStats.Status))
		metrics.ProviderAvgLatency.Set(h.MonitorStats.AverageLatency.Seconds())
	}
	slog.Debug("Updating provider metrics", "available", h.Available, "gate", a.gate.Stats())
}
