package kv

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store. All methods are safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

func (m *Memory) GetString(_ context.Context, key string) (string, error) {
	v, err := m.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrTypeMismatch
	}
	return s, nil
}

func (m *Memory) SetString(_ context.Context, key, value string) error {
	return m.set(key, value)
}

func (m *Memory) GetInt(_ context.Context, key string) (int64, error) {
	v, err := m.get(key)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return n, nil
}

func (m *Memory) SetInt(_ context.Context, key string, value int64) error {
	return m.set(key, value)
}

func (m *Memory) GetStrings(_ context.Context, key string) ([]string, error) {
	v, err := m.get(key)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list, ok := v.([]string)
	if !ok {
		return nil, ErrTypeMismatch
	}
	return slices.Clone(list), nil
}

func (m *Memory) SetStrings(_ context.Context, key string, values []string) error {
	return m.set(key, slices.Clone(values))
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// Incr adds delta to the integer stored at key.
func (m *Memory) Incr(_ context.Context, key string, delta int64) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if v, ok := m.values[key]; ok {
		n, ok := v.(int64)
		if !ok {
			return 0, ErrTypeMismatch
		}
		current = n
	}
	current += delta
	m.values[key] = current
	return current, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

func (m *Memory) get(key string) (any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *Memory) set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}
