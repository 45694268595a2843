// Package keyedmutex serializes operations sharing a key while
// letting operations on different keys run in parallel. Entries are
// reference-counted and evicted once nobody holds or waits on them,
// so the registry does not grow with the number of keys ever seen.
package keyedmutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is a registry of per-key locks. The zero value is not
// usable; call New.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New creates an empty registry.
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[int64]*entry)}
}

// Lock acquires the lock for key, blocking while another holder has
// it. The returned function releases the lock and must be called
// exactly once, typically via defer so the lock is released on every
// exit path.
func (m *KeyedMutex) Lock(key int64) func() {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
}

// Len returns the number of live entries, for tests.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
