package persistence

import (
	"sort"
	"strings"
	"sync"
)

// MemoryEngine is an in-memory implementation of Engine, used in tests and
// for ephemeral deployments.
type MemoryEngine struct {
	mu        sync.RWMutex
	data      map[string][]byte
	sequences map[string]uint64
}

// NewMemoryEngine creates a new in-memory persistence engine
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		data:      make(map[string][]byte),
		sequences: make(map[string]uint64),
	}
}

func (m *MemoryEngine) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if val, ok := m.data[key]; ok {
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	}
	return nil, ErrKeyNotFound
}

func (m *MemoryEngine) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

func (m *MemoryEngine) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryEngine) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryEngine) Scan(prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	for key, val := range m.data {
		if strings.HasPrefix(key, prefix) {
			out := make([]byte, len(val))
			copy(out, val)
			entries = append(entries, Entry{Key: key, Value: out})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m *MemoryEngine) NextSequence(name string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[name]++
	return m.sequences[name], nil
}

func (m *MemoryEngine) Close() error {
	return nil
}
