package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/deepwiki/internal/infra/rpc/timeout"
)

const (
	maxResponseBytes = 32 << 20
	maxErrorBody     = 512
	userAgent        = "deepwiki-go/1.0"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name    string
	BaseURL string
	APIKey  string

	Policy timeout.Policy
	Pool   timeout.PoolLimits

	// RateLimit paces outgoing requests (per second); zero disables pacing.
	RateLimit float64
	RateBurst int

	// Client overrides the client built from Policy and Pool.
	Client *http.Client

	// MaxResponseBytes bounds a response body; zero means 32 MiB.
	MaxResponseBytes int64
}

// HTTPProvider implements Provider for JSON over HTTP.
type HTTPProvider struct {
	*BaseProvider

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	policy     timeout.Policy
	limiter    *rate.Limiter
	maxBody    int64
}

// NewHTTPProvider creates a provider for the service at cfg.BaseURL. The returned
// provider owns one connection pool shared by every caller.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}

	name := cfg.Name
	if name == "" {
		name = base.Host
	}
	client := cfg.Client
	if client == nil {
		client = cfg.Policy.NewClient(cfg.Pool)
	}

	p := &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		baseURL:      base,
		apiKey:       cfg.APIKey,
		httpClient:   client,
		policy:       cfg.Policy,
		maxBody:      cfg.MaxResponseBytes,
	}
	if p.maxBody <= 0 {
		p.maxBody = maxResponseBytes
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p, nil
}

// Execute performs a single attempt of op.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", op.Name, err)
		}
	}

	method := op.Method
	if method == "" {
		method = http.MethodGet
	}

	target := p.baseURL.JoinPath(op.Path)
	if len(op.Query) > 0 {
		target.RawQuery = op.Query.Encode()
	}

	var body io.Reader
	if op.Body != nil {
		jsonData, err := json.Marshal(op.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op.Name, err)
		}
		body = bytes.NewReader(jsonData)
	}

	ctx, done := p.policy.WatchPool(ctx)
	defer done()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure()
		return nil, timeout.Explain(ctx, fmt.Errorf("%s %s: %w", method, op.Name, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		p.RecordFailure()
		return nil, timeout.Explain(ctx, fmt.Errorf("read %s response: %w", op.Name, err))
	}
	if int64(len(data)) > p.maxBody {
		p.RecordFailure()
		return nil, fmt.Errorf("%s response exceeds %d bytes: %w", op.Name, p.maxBody, ErrResponseTooLarge)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		p.Monitor.RecordThrottle(retryAfter)
		p.RecordFailure()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(data),
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.RecordFailure()
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(data)}
		// Some gateways report throttling as a plain 4xx with a telling body.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusNotFound && p.Monitor.DetectThrottlePattern(string(data)) {
			p.Monitor.RecordThrottle(0)
			statusErr.StatusCode = http.StatusTooManyRequests
		}
		return nil, statusErr
	}

	p.RecordSuccess(latency)
	return data, nil
}

// Close releases idle pooled connections.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
