package storage

import (
	"errors"
	"fmt"
	"sort"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// Store is the local replica of the shared key-value fabric. Every node
// keeps one scope per fleet member (plus the fleet scope) and merges its own
// writes and the snapshots replicated from peers into it.
//
// Writing an empty value removes the key. A scope exists once anything has
// been written to it.
type Store interface {
	// Scopes lists every scope currently held, sorted
	Scopes() ([]string, error)

	// Get returns a copy of a scope; a missing scope yields an empty map
	Get(scope string) (map[string]string, error)

	// Put merges kv into a scope, last writer wins per key
	Put(scope string, kv map[string]string) error

	// Replace swaps the whole content of a scope for kv
	Replace(scope string, kv map[string]string) error

	// DropScope forgets a scope entirely
	DropScope(scope string) error

	Close() error
}

// Backend names accepted by Open
const (
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open creates a store for the named backend rooted at dataDir
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendBolt, "":
		return NewBoltStore(dataDir)
	case BackendBadger:
		return NewBadgerStore(dataDir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// merge applies kv on top of existing; empty values delete keys
func merge(existing, kv map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(kv))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range kv {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
