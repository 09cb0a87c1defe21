// Package kvstate provides the small keyed-state abstraction shared by the
// notification router (draft -> posted message coordinates) and the folder
// watcher (folder -> push channel). Check-then-write sequences go through
// CreateIfAbsent so concurrent handlers cannot double-post or
// double-subscribe.
package kvstate

import "sync"

type Store[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	// CreateIfAbsent stores value only when key has no entry yet and reports
	// whether the write happened. The first writer wins.
	CreateIfAbsent(key string, value V) bool
	Delete(key string)
	Keys() []string
}

type Memory[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{items: make(map[string]V)}
}

func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	return v, ok
}

func (m *Memory[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

func (m *Memory[V]) CreateIfAbsent(key string, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; exists {
		return false
	}
	m.items[key] = value
	return true
}

func (m *Memory[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *Memory[V]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}
