package contentmodel

import "sync"

// distinctMultiMap associates keys with ordered collections of distinct
// values. Adding a value equal to an existing one moves it to the end.
// Value slices are never modified in place, so readers may keep them.
type distinctMultiMap[K comparable, V any] struct {
	mu     sync.RWMutex
	equal  func(a, b V) bool
	values map[K][]V
}

func newDistinctMultiMap[K comparable, V any](equal func(a, b V) bool) *distinctMultiMap[K, V] {
	return &distinctMultiMap[K, V]{
		equal:  equal,
		values: make(map[K][]V),
	}
}

// Put adds value under key
func (m *distinctMultiMap[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.values[key]
	next := make([]V, 0, len(current)+1)
	for _, v := range current {
		if !m.equal(v, value) {
			next = append(next, v)
		}
	}
	m.values[key] = append(next, value)
}

// Get returns the values under key
func (m *distinctMultiMap[K, V]) Get(key K) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

// RemoveFunc removes every value for which remove returns true and returns
// the number of removed values
func (m *distinctMultiMap[K, V]) RemoveFunc(remove func(V) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, current := range m.values {
		var next []V
		for _, v := range current {
			if remove(v) {
				removed++
				continue
			}
			next = append(next, v)
		}
		if len(next) == 0 {
			delete(m.values, key)
		} else if len(next) != len(current) {
			m.values[key] = next
		}
	}
	return removed
}

// Contents returns a shallow copy of the map
func (m *distinctMultiMap[K, V]) Contents() map[K][]V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contents := make(map[K][]V, len(m.values))
	for k, v := range m.values {
		contents[k] = append([]V(nil), v...)
	}
	return contents
}

// Clear removes all values
func (m *distinctMultiMap[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[K][]V)
}
