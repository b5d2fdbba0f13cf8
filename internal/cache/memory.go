package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the default in-process Store. All mutation happens on the
// orchestrator's call path, so there is no background eviction goroutine.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, source string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[source]
	return e, ok
}

func (m *Memory) Put(_ context.Context, source string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[source] = Entry{Source: source, Value: value, FetchedAt: time.Now(), TTL: ttl}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, source)
	return nil
}

func (m *Memory) Entries(_ context.Context) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Seed installs a fully formed entry, bypassing the clock. Test helper.
func (m *Memory) Seed(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Source] = e
}
