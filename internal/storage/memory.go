package storage

import (
	"context"
	"sync"

	"github.com/jonathan/problem-workshop/internal/types"
)

// MemoryStore keeps encoded records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get decodes the record stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (*types.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return Decode(data)
}

// Put encodes and stores record under key.
func (m *MemoryStore) Put(_ context.Context, key string, record *types.UserRecord) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.data[key] = data
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
