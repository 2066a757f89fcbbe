package store

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, sessionID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return Entry{}, ErrNotFound
	}

	return entry, nil
}

func (m *Memory) Set(_ context.Context, sessionID string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[sessionID] = entry

	return nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, sessionID)

	return nil
}

func (m *Memory) All(_ context.Context) (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.entries), nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}
