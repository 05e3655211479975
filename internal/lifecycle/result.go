package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/vietddude/deepwiki/internal/core/apierr"
	"github.com/vietddude/deepwiki/internal/core/domain"
)

// Snapshot is the outcome of a single non-polling fetch.
type Snapshot struct {
	QueryID  string             `json:"query_id"`
	State    domain.RemoteState `json:"state"`
	Terminal bool               `json:"terminal"`
	Result   *domain.Result     `json:"result,omitempty"`
	Error    *apierr.Error      `json:"error,omitempty"`

	// Raw is the status payload the snapshot was built from.
	Raw json.RawMessage `json:"-"`
}

// GetResult fetches the current state of a query once. Terminal payloads are served
// from the store when present so every read of a finished query sees the same bytes.
// Concurrent calls for the same id share one fetch. The shared fetch is detached
// from every caller's cancellation and bounded by FetchTimeout and the manager's
// base context; each caller still stops waiting when its own ctx is done.
func (m *Manager) GetResult(ctx context.Context, id string) (*Snapshot, error) {
	ch := m.group.DoChan(id, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()
		stop := context.AfterFunc(m.base, cancel)
		defer stop()
		return m.fetch(fctx, id)
	})
	select {
	case <-ctx.Done():
		return nil, apierr.Classify(ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, apierr.From(r.Err)
		}
		return r.Val.(*Snapshot), nil
	}
}

func (m *Manager) fetch(ctx context.Context, id string) (*Snapshot, error) {
	raw, ok, err := m.store.Get(ctx, id)
	if err != nil {
		m.log.Warn("Failed to read stored result", "query_id", id, "error", err)
	} else if ok {
		return buildSnapshot(id, raw)
	}

	status, raw, err := m.client.QueryStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if state := status.State(); !state.Terminal() {
		return &Snapshot{QueryID: id, State: state, Raw: raw}, nil
	}
	return buildSnapshot(id, m.storeTerminal(ctx, id, raw))
}

func buildSnapshot(id string, raw []byte) (*Snapshot, error) {
	status, err := domain.ParseStatus(raw)
	if err != nil {
		return nil, apierr.New(apierr.KindUnknown, "stored result for %s is unreadable", id).AsTerminal().WithCause(err)
	}
	snap := &Snapshot{
		QueryID:  id,
		State:    status.State(),
		Terminal: status.State().Terminal(),
		Raw:      raw,
	}
	switch snap.State {
	case domain.RemoteDone:
		res, err := domain.BuildResult(id, raw)
		if err != nil {
			return nil, apierr.New(apierr.KindUnknown, "result for %s is unreadable", id).AsTerminal().WithCause(err)
		}
		snap.Result = res
	case domain.RemoteFailed:
		snap.Error = remoteFailure(id, status)
	}
	return snap, nil
}
