package routing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/metrics"
)

// RetryConfig defines retry behavior for one logical call.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	// Jitter shortens each delay by a random fraction in [0, Jitter).
	Jitter float64
	// MaxRetryAfter caps a server-supplied Retry-After hint.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    2 * time.Second,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
	Jitter:          0.2,
	MaxRetryAfter:   60 * time.Second,
}

// Validate checks the config for values the executor cannot work with.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 || c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("invalid delays: initial %s, max %s", c.InitialDelay, c.MaxDelay)
	}
	if c.BackoffMultiple < 1 {
		return fmt.Errorf("backoff multiple must be >= 1, got %v", c.BackoffMultiple)
	}
	// Anything above 0.5 could make a doubled delay shorter than its predecessor.
	if c.Jitter < 0 || c.Jitter > 0.5 {
		return fmt.Errorf("jitter must be within [0, 0.5], got %v", c.Jitter)
	}
	return nil
}

// Backoff returns the wait before retry number attempt (1-indexed), given a uniform
// sample u in [0, 1). The result is min(MaxDelay, InitialDelay*multiple^(attempt-1))
// shortened by at most Jitter, so consecutive delays never decrease.
func (c RetryConfig) Backoff(attempt int, u float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(c.BackoffMultiple, float64(attempt-1))
	delay *= 1 - c.Jitter*u
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}

// Executor runs an operation with classification-driven retries.
type Executor struct {
	config RetryConfig
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	rand   func() float64
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for retry warnings. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithRand replaces the jitter source.
func WithRand(r func() float64) Option {
	return func(e *Executor) { e.rand = r }
}

// NewExecutor creates an executor for config.
func NewExecutor(config RetryConfig, opts ...Option) *Executor {
	e := &Executor{
		config: config,
		log:    slog.Default(),
		sleep:  SleepContext,
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor's retry config.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// Do executes op, retrying transient failures. The returned error is always an
// *apierr.Error; when retries run out it is the last failure with Exhausted set.
func (e *Executor) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	maxAttempts := max(e.config.MaxAttempts, 1)
	var last *apierr.Error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		last = withAttempts(apierr.Classify(err), attempt)

		// Non-transient outcomes and a finished caller end the call right away.
		if !last.Retryable || ctx.Err() != nil {
			return last
		}
		if attempt == maxAttempts {
			break
		}

		delay := e.delayFor(attempt, last)
		metrics.RPCRetriesTotal.WithLabelValues(name, string(last.Kind)).Inc()
		e.log.Warn("Retrying remote call",
			"op", name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"kind", last.Kind,
			"delay", delay,
			"error", err,
		)

		if err := e.sleep(ctx, delay); err != nil {
			return withAttempts(apierr.Classify(err), attempt)
		}
	}

	exhausted := *last
	exhausted.Exhausted = true
	return &exhausted
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (e *Executor) delayFor(attempt int, last *apierr.Error) time.Duration {
	if last.Kind == apierr.KindRateLimit && last.RetryAfter > 0 {
		if e.config.MaxRetryAfter > 0 && last.RetryAfter > e.config.MaxRetryAfter {
			return e.config.MaxRetryAfter
		}
		return last.RetryAfter
	}
	return e.config.Backoff(attempt, e.rand())
}

func withAttempts(e *apierr.Error, attempts int) *apierr.Error {
	c := *e
	c.Attempts = attempts
	return &c
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
