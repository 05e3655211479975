// Package provider implements the transport to the remote code-intelligence service.
//
// This package contains:
//   - Provider interface: core abstraction for the remote endpoint
//   - HTTPProvider: JSON over HTTP implementation
//   - ProviderMonitor: latency and throttle tracking
//   - StatusError, DecodeError: raw failures handed to the classifier
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Operation describes one REST call against the service.
type Operation struct {
	// Name labels the endpoint for logs and metrics (e.g., "submit_query").
	Name string

	// Method is the HTTP method; empty means GET.
	Method string

	// Path is joined to the provider's base URL.
	Path string

	// Query holds URL query parameters.
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any
}

// Provider defines the core interface for a remote endpoint.
type Provider interface {
	// GetName returns the provider identifier
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Execute performs a single attempt of op and returns the raw response body.
	Execute(ctx context.Context, op Operation) ([]byte, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// ErrResponseTooLarge reports a response body above the provider's size limit.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	// Body is a truncated copy of the response body, for logs only.
	Body string
	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// DecodeError is a response body that could not be parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeJSON unmarshals raw into v, reporting failures as *DecodeError.
func DecodeJSON(op string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}
