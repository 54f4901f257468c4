package store

import (
	"context"
	"sync"

	"github.com/kestrelworks/switchboard/internal/domain"
)

// Memory is a map-backed driver for tests and ephemeral runs.
// Records are deep-copied on the way in and out so callers never alias
// stored state.
type Memory struct {
	mu      sync.RWMutex
	records map[domain.SessionKey]*Record
}

// NewMemory creates an in-memory driver.
func NewMemory() *Memory {
	return &Memory{records: make(map[domain.SessionKey]*Record)}
}

// Load implements Driver.
func (m *Memory) Load(_ context.Context, key domain.SessionKey) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[key].Clone(), nil
}

// Save implements Driver.
func (m *Memory) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec.Clone()
	return nil
}

// Delete implements Driver.
func (m *Memory) Delete(_ context.Context, key domain.SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Keys implements Driver.
func (m *Memory) Keys(_ context.Context) ([]domain.SessionKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]domain.SessionKey, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close implements Driver.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}
