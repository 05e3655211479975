package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a memory store when no limit is configured.
const DefaultMaxEntries = 1000

type memoryEntry struct {
	id        string
	payload   []byte
	expiresAt time.Time
}

// Memory is an in-process Store with TTL expiry and oldest-first eviction.
type Memory struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front is oldest
	closed     bool
	now        func() time.Time
}

// NewMemory creates a memory store. A zero ttl keeps entries until evicted.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	e := m.lookup(id)
	if e == nil {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (m *Memory) PutIfAbsent(_ context.Context, id string, payload []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if e := m.lookup(id); e != nil {
		return e.payload, nil
	}

	stored := append([]byte(nil), payload...)
	entry := &memoryEntry{id: id, payload: stored}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[id] = m.order.PushBack(entry)
	for m.order.Len() > m.maxEntries {
		m.remove(m.order.Front())
	}
	return stored, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// lookup returns the live entry for id, dropping it if expired. Callers hold mu.
func (m *Memory) lookup(id string) *memoryEntry {
	el, ok := m.entries[id]
	if !ok {
		return nil
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.remove(el)
		return nil
	}
	return e
}

func (m *Memory) remove(el *list.Element) {
	e := m.order.Remove(el).(*memoryEntry)
	delete(m.entries, e.id)
}
