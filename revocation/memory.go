package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-process registry for tests and single-node
// deployments. Expired entries are dropped lazily on reads and swept
// on writes.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time

	now func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemory creates an empty in-process registry.
func NewMemory() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add implements Registry.
func (m *MemoryRegistry) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	m.entries[tokenID] = now.Add(ttl)

	return nil
}

// Contains implements Registry.
func (m *MemoryRegistry) Contains(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}

	if !m.now().Before(deadline) {
		delete(m.entries, tokenID)
		return false, nil
	}

	return true, nil
}

// Len reports the number of live entries.
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(m.now())
	return len(m.entries)
}

// sweep must be called with the lock held.
func (m *MemoryRegistry) sweep(now time.Time) {
	for id, deadline := range m.entries {
		if !now.Before(deadline) {
			delete(m.entries, id)
		}
	}
}
