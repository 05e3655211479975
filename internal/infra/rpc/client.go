package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
	"github.com/vietddude/deepwiki/internal/infra/rpc/gate"
	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/infra/rpc/routing"
	"github.com/vietddude/deepwiki/internal/metrics"
)

// Client is the high-level interface for calling the remote service.
// This is what application layers should use.
type Client struct {
	provider provider.Provider
	gate     *gate.Gate
	retry    *routing.Executor
	log      *slog.Logger
}

// NewClient wires a provider behind the admission gate and retry executor.
func NewClient(p provider.Provider, g *gate.Gate, retry *routing.Executor, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: p,
		gate:     g,
		retry:    retry,
		log:      log,
	}
}

// call runs one logical call: gated, retried and classified. decode runs inside the
// retry loop so a malformed body is classified like any other outcome.
func (c *Client) call(ctx context.Context, op Operation, decode func([]byte) error) error {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(op.Name).Inc()

	err := c.gate.Do(ctx, func(ctx context.Context) error {
		return c.retry.Do(ctx, op.Name, func(ctx context.Context) error {
			data, err := c.provider.Execute(ctx, op)
			if err != nil {
				return err
			}
			if decode == nil {
				return nil
			}
			return decode(data)
		})
	})
	metrics.RPCLatency.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	var apiErr *apierr.Error
	if errors.Is(err, gate.ErrClosed) {
		apiErr = apierr.New(apierr.KindUnknown, "the service is shutting down").AsTerminal().WithCause(err)
	} else {
		apiErr = apierr.From(err)
	}
	metrics.RPCErrorsTotal.WithLabelValues(op.Name, string(apiErr.Kind)).Inc()
	c.log.Warn("Remote call failed",
		"op", op.Name,
		"kind", apiErr.Kind,
		"attempts", apiErr.Attempts,
		"exhausted", apiErr.Exhausted,
		"error", err,
	)
	return apiErr
}

// SubmitQuery submits req and returns the id the service will answer to.
func (c *Client) SubmitQuery(ctx context.Context, req domain.QueryRequest) (string, error) {
	var resp struct {
		QueryID string `json:"query_id"`
	}
	err := c.call(ctx, NewSubmitOperation(req), func(data []byte) error {
		resp.QueryID = ""
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return provider.DecodeJSON(EndpointSubmitQuery, data, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.QueryID != "" {
		return resp.QueryID, nil
	}
	return req.QueryID, nil
}

// QueryStatus fetches the status of queryID. The raw body is returned alongside the
// decoded view so terminal payloads can be stored verbatim.
func (c *Client) QueryStatus(ctx context.Context, queryID string) (*domain.StatusResponse, []byte, error) {
	var (
		status domain.StatusResponse
		raw    []byte
	)
	err := c.call(ctx, NewStatusOperation(queryID), func(data []byte) error {
		status = domain.StatusResponse{}
		if err := provider.DecodeJSON(EndpointQueryStatus, data, &status); err != nil {
			return err
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &status, raw, nil
}

// RepoStatus fetches the indexing status of repo.
func (c *Client) RepoStatus(ctx context.Context, repo string) (domain.RepoInfo, error) {
	return c.repoCall(ctx, NewRepoStatusOperation(repo), repo)
}

// WarmRepo asks the service to pre-load repo. It does not wait for the warm-up.
func (c *Client) WarmRepo(ctx context.Context, repo string) (domain.RepoInfo, error) {
	return c.repoCall(ctx, NewWarmRepoOperation(repo), repo)
}

func (c *Client) repoCall(ctx context.Context, op Operation, repo string) (domain.RepoInfo, error) {
	var info domain.RepoInfo
	err := c.call(ctx, op, func(data []byte) error {
		info = domain.RepoInfo{}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return provider.DecodeJSON(op.Name, data, &info)
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = domain.RepoInfo{}
	}
	info["repo_name"] = repo
	return info, nil
}

// ListRepos searches the indexed repositories for term.
func (c *Client) ListRepos(ctx context.Context, term string) (*domain.RepoSearch, error) {
	var resp struct {
		Repositories []json.RawMessage `json:"repositories"`
	}
	err := c.call(ctx, NewListReposOperation(term), func(data []byte) error {
		resp.Repositories = nil
		return provider.DecodeJSON(EndpointListRepos, data, &resp)
	})
	if err != nil {
		return nil, err
	}
	repos := resp.Repositories
	if repos == nil {
		repos = []json.RawMessage{}
	}
	return &domain.RepoSearch{
		SearchTerm:   term,
		Count:        len(repos),
		Repositories: repos,
	}, nil
}

// Health reports the provider's health.
func (c *Client) Health() HealthStatus {
	return c.provider.GetHealth()
}

// Close releases pooled connections.
func (c *Client) Close() error {
	return c.provider.Close()
}

// GateStats reports the admission gate's occupancy.
func (c *Client) GateStats() gate.Stats {
	return c.gate.Stats()
}
