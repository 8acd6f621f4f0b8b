package ds

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// LockingMap is a map safe for concurrent use.
type LockingMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewLockingMap[K comparable, V any]() *LockingMap[K, V] {
	return &LockingMap[K, V]{m: make(map[K]V)}
}

func (m *LockingMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.m[key]
	return value, ok
}

func (m *LockingMap[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

func (m *LockingMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

func (m *LockingMap[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// All yields the entries present when iteration started, skipping any
// deleted since. The map is never locked while yielding, so callers may
// modify it mid-iteration.
func (m *LockingMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.mu.RLock()
		keys := slices.Collect(maps.Keys(m.m))
		m.mu.RUnlock()

		for _, k := range keys {
			value, ok := m.Get(k)
			if !ok {
				continue
			}
			if !yield(k, value) {
				return
			}
		}
	}
}
