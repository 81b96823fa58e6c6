// Package store defines the local persistence capabilities: a small
// key/value store standing in for browser-local storage, and an archive for
// confirmed daily history.
package store

import (
	"context"
	"errors"
	"sync"

	"tickerdesk/internal/domain"
)

// ErrNotFound is returned when a key or archive entry does not exist.
var ErrNotFound = errors.New("store: not found")

// KV persists opaque values under string keys. Implementations are safe for
// concurrent use.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Archive persists and retrieves confirmed history bars per ticker code.
type Archive interface {
	// WriteHistory merges bars into the archive for code.
	WriteHistory(ctx context.Context, code string, bars []domain.Bar) error

	// ReadHistory returns archived bars for code, newest first.
	ReadHistory(ctx context.Context, code string) ([]domain.Bar, error)

	// ListCodes returns all codes present in the archive.
	ListCodes(ctx context.Context) ([]string, error)
}

// Compile-time interface check.
var _ KV = (*MemoryKV)(nil)

// MemoryKV is an in-process KV, used by tests and when no database path is
// configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value under key.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
