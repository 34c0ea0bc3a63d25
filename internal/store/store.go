// Package store holds the object store shared by the storage backends and an
// in-process implementation used for backtests and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"phasetrader/internal/model"
)

// ErrNotFound is returned (wrapped) by ObjectStore.Read for missing keys.
var ErrNotFound = errors.New("store: key not found")

// Memory is an in-process model.ObjectStore.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ model.ObjectStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) ContainsKey(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) Read(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("memory: %s: %w", key, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
