// Package rpc provides a resilient client for the remote code-intelligence service.
//
// Every call goes through the same pipeline:
//
//	admission gate -> retry executor -> HTTP provider (timeout policy) -> classifier
//
// # Quick Start
//
//	g, _ := gate.New(5)
//	client, err := rpc.NewHTTPClient(rpc.Config{
//	    BaseURL:  "https://api.devin.ai",
//	    Timeouts: timeout.DefaultPolicy(),
//	    Pool:     timeout.DefaultPoolLimits,
//	    Retry:    routing.DefaultRetryConfig,
//	}, g, slog.Default())
//
//	id, err := client.SubmitQuery(ctx, req)
//	status, raw, err := client.QueryStatus(ctx, id)
//
// # Package Structure
//
//   - provider/ - HTTP transport and health monitoring
//   - timeout/  - per-phase time budgets for a single attempt
//   - routing/  - retry with exponential backoff
//   - gate/     - process-wide bound on in-flight calls
//
// Every error returned by Client is an *apierr.Error.
package rpc

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/deepwiki/internal/infra/rpc/gate"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/infra/rpc/routing"
	"github.com/vietddude/deepwiki/internal/infra/rpc/timeout"
)

// =============================================================================
// Re-exported types
// =============================================================================

// Provider is the core interface for the remote endpoint.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON over HTTP.
type HTTPProvider = provider.HTTPProvider

// Operation describes one REST call.
type Operation = provider.Operation

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// Config gathers everything needed to build an HTTP-backed Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeouts  timeout.Policy
	Pool      timeout.PoolLimits
	Retry     routing.RetryConfig
	RateLimit float64
	RateBurst int
}

// NewHTTPClient builds the HTTP provider and wires it behind g.
func NewHTTPClient(cfg Config, g *gate.Gate, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("timeouts: %w", err)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry: %w", err)
	}
	p, err := provider.NewHTTPProvider(provider.HTTPConfig{
		Name:      "deepwiki",
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Policy:    cfg.Timeouts,
		Pool:      cfg.Pool,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	if err != nil {
		return nil, err
	}
	exec := routing.NewExecutor(cfg.Retry, routing.WithLogger(log))
	return NewClient(p, g, exec, log), nil
}
