// Package gate bounds the number of remote calls in flight across the whole process.
//
// Waiters are admitted in FIFO order (golang.org/x/sync/semaphore queues waiters and
// wakes them in arrival order), so a steady stream of new callers cannot starve an
// earlier one.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vietddude/deepwiki/internal/metrics"
)

// ErrClosed is returned by Acquire after Close has been called.
var ErrClosed = errors.New("admission gate closed")

// DefaultCapacity is the default number of concurrent remote calls.
const DefaultCapacity = 5

// Gate is a counting permit pool. Create one at startup with New and Close it at shutdown.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64

	closed   atomic.Bool
	drained  atomic.Bool
	inFlight atomic.Int64
	waiting  atomic.Int64
	peak     atomic.Int64
}

// Stats is a point-in-time view of the gate.
type Stats struct {
	Capacity int   `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Waiting  int64 `json:"waiting"`
	Peak     int64 `json:"peak"`
	Closed   bool  `json:"closed"`
}

// New creates a gate admitting at most capacity concurrent holders.
func New(capacity int) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("gate capacity must be at least 1, got %d", capacity)
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Acquire blocks until a permit is free or ctx is done. The returned release func
// must be called exactly once when the guarded call finishes; extra calls are no-ops.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if g.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	g.waiting.Add(1)
	metrics.GateWaiting.Inc()
	err = g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	metrics.GateWaiting.Dec()
	if err != nil {
		return nil, fmt.Errorf("acquire admission permit: %w", err)
	}

	// Close may have started draining while we waited.
	if g.closed.Load() {
		g.sem.Release(1)
		return nil, ErrClosed
	}

	metrics.GateWait.Observe(time.Since(start).Seconds())
	n := g.inFlight.Add(1)
	metrics.GateInFlight.Inc()
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			metrics.GateInFlight.Dec()
			g.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a permit. The permit is released on every exit path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Capacity returns the maximum number of concurrent holders.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Stats returns a snapshot of the gate's counters.
func (g *Gate) Stats() Stats {
	return Stats{
		Capacity: int(g.capacity),
		InFlight: g.inFlight.Load(),
		Waiting:  g.waiting.Load(),
		Peak:     g.peak.Load(),
		Closed:   g.closed.Load(),
	}
}

// Close stops admitting new callers and waits until every outstanding permit has
// been released, or ctx is done. After a successful Close the gate holds all permits.
func (g *Gate) Close(ctx context.Context) error {
	g.closed.Store(true)
	if g.drained.Load() {
		return nil
	}
	if err := g.sem.Acquire(ctx, g.capacity); err != nil {
		return fmt.Errorf("drain admission gate (%d in flight): %w", g.inFlight.Load(), err)
	}
	g.drained.Store(true)
	return nil
}
