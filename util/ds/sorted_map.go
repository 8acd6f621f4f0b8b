package ds

import (
	"cmp"
	"iter"
	"slices"
)

// SortedMap is a map whose keys iterate in ascending order. Keys are kept
// sorted on insert, so Set is O(N) and lookups are O(1).
type SortedMap[K cmp.Ordered, V any] struct {
	keys []K
	m    map[K]V
}

func NewSortedMap[K cmp.Ordered, V any]() *SortedMap[K, V] {
	return &SortedMap[K, V]{m: make(map[K]V)}
}

// Set stores v under k, reporting whether the key is new.
func (sm *SortedMap[K, V]) Set(k K, v V) (new bool) {
	_, hadKey := sm.m[k]
	if !hadKey {
		at, _ := slices.BinarySearch(sm.keys, k)
		sm.keys = slices.Insert(sm.keys, at, k)
	}
	sm.m[k] = v
	return !hadKey
}

func (sm *SortedMap[K, V]) Get(k K) (V, bool) {
	v, ok := sm.m[k]
	return v, ok
}

func (sm *SortedMap[K, V]) Has(k K) bool {
	_, ok := sm.m[k]
	return ok
}

func (sm *SortedMap[K, V]) Keys() []K {
	return sm.keys
}

func (sm *SortedMap[K, V]) Values() []V {
	values := make([]V, len(sm.keys))
	for i, k := range sm.keys {
		values[i] = sm.m[k]
	}
	return values
}

func (sm *SortedMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range sm.keys {
			if !yield(k, sm.m[k]) {
				return
			}
		}
	}
}

func (sm *SortedMap[K, V]) Delete(k K) (removed bool) {
	if _, ok := sm.m[k]; !ok {
		return false
	}
	at, _ := slices.BinarySearch(sm.keys, k)
	sm.keys = slices.Delete(sm.keys, at, at+1)
	delete(sm.m, k)
	return true
}

func (sm *SortedMap[K, V]) Size() int {
	return len(sm.keys)
}
