// Package timeout enforces per-phase time budgets on a single HTTP attempt.
//
// Each attempt gets four independent budgets:
//   - Connect: dialing and the TLS handshake
//   - Write:   every write to the connection
//   - Read:    every read from the connection, and the wait for response headers
//   - Pool:    waiting for a free connection from the shared pool
//
// Budgets apply per attempt, never cumulatively across retries.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

// ErrPoolTimeout is the cancellation cause when no pooled connection became free in time.
var ErrPoolTimeout = errors.New("timed out waiting for a free connection")

// Policy holds the per-phase budgets.
type Policy struct {
	Connect time.Duration
	Write   time.Duration
	Read    time.Duration
	Pool    time.Duration
}

// DefaultPolicy returns the standard budgets.
func DefaultPolicy() Policy {
	return Policy{
		Connect: 10 * time.Second,
		Write:   10 * time.Second,
		Read:    180 * time.Second,
		Pool:    5 * time.Second,
	}
}

// Validate checks that every budget is positive.
func (p Policy) Validate() error {
	for name, d := range map[string]time.Duration{
		"connect": p.Connect,
		"write":   p.Write,
		"read":    p.Read,
		"pool":    p.Pool,
	} {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive, got %s", name, d)
		}
	}
	return nil
}

// PoolLimits sizes the shared connection pool.
type PoolLimits struct {
	MaxConns     int
	MaxIdleConns int
}

// DefaultPoolLimits matches the service's expected parallelism.
var DefaultPoolLimits = PoolLimits{
	MaxConns:     20,
	MaxIdleConns: 10,
}

// NewTransport builds a transport whose connections enforce the read/write budgets.
func (p Policy) NewTransport(limits PoolLimits) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   p.Connect,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: p.Read, write: p.Write}, nil
		},
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   p.Connect,
		ResponseHeaderTimeout: p.Read,
		MaxConnsPerHost:       limits.MaxConns,
		MaxIdleConns:          limits.MaxIdleConns,
		MaxIdleConnsPerHost:   limits.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewClient builds the process-wide HTTP client. It has no overall timeout; the
// per-phase budgets bound each attempt instead.
func (p Policy) NewClient(limits PoolLimits) *http.Client {
	return &http.Client{Transport: p.NewTransport(limits)}
}

// WatchPool returns a context that is cancelled with ErrPoolTimeout if the request
// waits longer than the pool budget for a connection. The watch stops once a
// connection is obtained or a new dial starts (the connect budget takes over).
// The returned release func must be called when the attempt is finished.
func (p Policy) WatchPool(parent context.Context) (context.Context, func()) {
	if p.Pool <= 0 {
		return parent, func() {}
	}
	ctx, cancel := context.WithCancelCause(parent)
	w := &poolWatch{budget: p.Pool, cancel: cancel}
	trace := &httptrace.ClientTrace{
		GetConn:      func(string) { w.arm() },
		GotConn:      func(httptrace.GotConnInfo) { w.disarm() },
		ConnectStart: func(string, string) { w.disarm() },
	}
	return httptrace.WithClientTrace(ctx, trace), func() {
		w.disarm()
		cancel(nil)
	}
}

// Explain rewrites err to name the pool budget when that is what cancelled ctx.
func Explain(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrPoolTimeout) && !errors.Is(err, ErrPoolTimeout) {
		return fmt.Errorf("%w: %v", ErrPoolTimeout, err)
	}
	return err
}

type poolWatch struct {
	mu     sync.Mutex
	budget time.Duration
	timer  *time.Timer
	cancel context.CancelCauseFunc
}

func (w *poolWatch) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.budget, func() { w.cancel(ErrPoolTimeout) })
		return
	}
	w.timer.Reset(w.budget)
}

func (w *poolWatch) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// deadlineConn refreshes the read or write deadline before every I/O call, so a stalled
// peer surfaces as a net.Error with Timeout() == true. A write also pushes the read
// deadline out, since a pooled connection may already be parked in a read.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
