// Package lifecycle turns an asynchronous remote query into a synchronous-looking
// result: submit, poll until a terminal state, and serve finished results again.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
	"github.com/vietddude/deepwiki/internal/infra/cache"
	"github.com/vietddude/deepwiki/internal/infra/rpc/routing"
	"github.com/vietddude/deepwiki/internal/metrics"
)

// RemoteClient is the part of the remote service the manager drives. Every call is
// expected to be gated, retried and classified already.
type RemoteClient interface {
	SubmitQuery(ctx context.Context, req domain.QueryRequest) (string, error)
	QueryStatus(ctx context.Context, queryID string) (*domain.StatusResponse, []byte, error)
}

// Config controls the poll loop.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	// FetchTimeout bounds one shared GetResult fetch; zero means DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// DefaultFetchTimeout bounds a shared GetResult fetch when none is configured.
const DefaultFetchTimeout = 5 * time.Minute

// DefaultConfig polls every 2s for up to 120 checks.
var DefaultConfig = Config{
	PollInterval: 2 * time.Second,
	MaxAttempts:  120,
	FetchTimeout: DefaultFetchTimeout,
}

// Validate checks the config for values the poll loop cannot work with.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max poll attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout must not be negative, got %s", c.FetchTimeout)
	}
	return nil
}

// Manager runs query jobs against a RemoteClient. It holds no job registry; each
// PollUntilDone call owns its Job.
type Manager struct {
	client RemoteClient
	store  cache.Store
	cfg    Config
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	newID  func() string
	group  singleflight.Group
	// base outlives single callers; shared fetches stop when it is done.
	base context.Context
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStore sets the terminal-result store. The default keeps nothing.
func WithStore(s cache.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithSleep replaces the context-aware sleep between status checks.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// WithBaseContext ties shared background work to ctx, typically the application's
// lifetime. The default is never cancelled.
func WithBaseContext(ctx context.Context) Option {
	return func(m *Manager) { m.base = ctx }
}

// WithIDGenerator replaces the client-side query id generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// New creates a manager.
func New(client RemoteClient, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		store:  cache.Nop{},
		cfg:    cfg,
		log:    slog.Default(),
		sleep:  routing.SleepContext,
		newID:  uuid.NewString,
		base:   context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.FetchTimeout <= 0 {
		m.cfg.FetchTimeout = DefaultFetchTimeout
	}
	return m
}

// Config returns the poll configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Submit sends spec to the remote service and returns the job in the Submitted state.
func (m *Manager) Submit(ctx context.Context, spec domain.QuerySpec) (*domain.Job, error) {
	if spec.Mode == "" {
		spec.Mode = domain.ModeFast
	}
	req := domain.NewQueryRequest(m.newID(), spec)

	id, err := m.client.SubmitQuery(ctx, req)
	if err != nil {
		metrics.JobsTotal.WithLabelValues(string(spec.Mode), "submit_failed").Inc()
		return nil, apierr.From(err)
	}

	job := domain.NewJob(id, spec, m.cfg.MaxAttempts)
	m.log.Info("Query submitted",
		"query_id", job.ID,
		"mode", job.Mode,
		"repos", job.Repositories,
	)
	return job, nil
}

// PollUntilDone checks the job's status every poll interval until the remote query
// finishes, the attempt budget runs out, or ctx is done. Progress snapshots for
// non-terminal checks are offered to progress without blocking; a nil channel
// disables them.
func (m *Manager) PollUntilDone(ctx context.Context, job *domain.Job, progress chan<- Progress) (*domain.Result, error) {
	if err := job.Transition(domain.JobPolling); err != nil {
		return nil, apierr.New(apierr.KindUnknown, "job %s cannot be polled: %v", job.ID, err).AsTerminal()
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = m.cfg.MaxAttempts
		job.MaxAttempts = maxAttempts
	}

	for {
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return nil, m.fail(job, domain.JobFailed, apierr.Classify(err))
		}

		status, raw, err := m.client.QueryStatus(ctx, job.ID)
		job.Attempts++
		if err != nil {
			return nil, m.fail(job, domain.JobFailed, apierr.From(err))
		}

		switch status.State() {
		case domain.RemoteDone:
			return m.complete(ctx, job, raw)
		case domain.RemoteFailed:
			m.storeTerminal(ctx, job.ID, raw)
			return nil, m.fail(job, domain.JobFailed, remoteFailure(job.ID, status))
		}

		if job.Attempts >= maxAttempts {
			total := m.cfg.PollInterval * time.Duration(maxAttempts)
			return nil, m.fail(job, domain.JobTimedOut, apierr.New(apierr.KindTimeout,
				"query %s did not finish after %d status checks (%s)", job.ID, job.Attempts, total,
			).AsTerminal())
		}

		m.emit(progress, newProgress(job, status.State()))
	}
}

// Run submits spec and polls it to a terminal state. The returned job is nil only
// when submission failed.
func (m *Manager) Run(ctx context.Context, spec domain.QuerySpec, progress chan<- Progress) (*domain.Job, error) {
	job, err := m.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	if _, err := m.PollUntilDone(ctx, job, progress); err != nil {
		return job, err
	}
	return job, nil
}

func (m *Manager) complete(ctx context.Context, job *domain.Job, raw []byte) (*domain.Result, error) {
	stored := m.storeTerminal(ctx, job.ID, raw)
	res, err := domain.BuildResult(job.ID, stored)
	if err != nil {
		return nil, m.fail(job, domain.JobFailed,
			apierr.New(apierr.KindUnknown, "query %s returned an unreadable result", job.ID).AsTerminal().WithCause(err))
	}
	if err := job.Complete(res); err != nil {
		return nil, apierr.New(apierr.KindUnknown, "job %s: %v", job.ID, err).AsTerminal()
	}
	m.finished(job, "done")
	m.log.Info("Query completed", "query_id", job.ID, "attempts", job.Attempts)
	return res, nil
}

func (m *Manager) fail(job *domain.Job, state domain.JobState, apiErr *apierr.Error) *apierr.Error {
	if err := job.Fail(state, apiErr); err != nil {
		m.log.Error("Job state change rejected", "query_id", job.ID, "error", err)
	}

	outcome := state.String()
	if errors.Is(apiErr, context.Canceled) {
		outcome = "cancelled"
	}
	m.finished(job, outcome)
	m.log.Error("Query did not complete",
		"query_id", job.ID,
		"state", job.State,
		"attempts", job.Attempts,
		"kind", apiErr.Kind,
		"error", apiErr,
	)
	return apiErr
}

func (m *Manager) finished(job *domain.Job, outcome string) {
	metrics.PollAttempts.Observe(float64(job.Attempts))
	metrics.JobsTotal.WithLabelValues(string(job.Mode), outcome).Inc()
}

// storeTerminal records raw for id and returns the payload that won. Store failures
// fall back to raw.
func (m *Manager) storeTerminal(ctx context.Context, id string, raw []byte) []byte {
	stored, err := m.store.PutIfAbsent(ctx, id, raw)
	if err != nil {
		m.log.Warn("Failed to store terminal result", "query_id", id, "error", err)
		return raw
	}
	return stored
}

// remoteFailure is the structured error for a query the remote service reports as failed.
func remoteFailure(id string, status *domain.StatusResponse) *apierr.Error {
	msg := "query failed"
	if last := status.Latest(); last != nil {
		msg = last.ErrorMessage()
	}
	return apierr.New(apierr.KindServer, "query %s failed: %s", id, msg).AsTerminal()
}
