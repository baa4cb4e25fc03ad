package tabstorage

import (
	"fmt"
	"sync"
)

// Tier is one level of key/value persistence holding serialized values.
type Tier interface {
	// Get returns the stored value and whether it was found
	Get(key string) (string, bool, error)

	// Set creates or overwrites the value stored under key
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// MemoryTier is an in-memory implementation of Tier. It backs the tab-scoped
// tier, which lives only as long as the process.
type MemoryTier struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Tier = (*MemoryTier)(nil)

// NewMemoryTier creates an empty in-memory tier
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		values: make(map[string]string),
	}
}

func (m *MemoryTier) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, fmt.Errorf("key is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryTier) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryTier) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
