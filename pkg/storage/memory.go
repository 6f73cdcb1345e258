package storage

import (
	"sync"
)

// MemoryStore keeps scopes in process memory. Used for tests and for
// throwaway single-node setups.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]map[string]string)}
}

func (m *MemoryStore) Scopes() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	set := make(map[string]struct{}, len(m.scopes))
	for scope := range m.scopes {
		set[scope] = struct{}{}
	}
	return sortedKeys(set), nil
}

func (m *MemoryStore) Get(scope string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return merge(m.scopes[scope], nil), nil
}

func (m *MemoryStore) Put(scope string, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.scopes[scope] = merge(m.scopes[scope], kv)
	return nil
}

func (m *MemoryStore) Replace(scope string, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.scopes[scope] = merge(nil, kv)
	return nil
}

func (m *MemoryStore) DropScope(scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.scopes, scope)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
