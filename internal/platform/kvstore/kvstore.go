// Package kvstore provides the persistent key/value space the pseudo-backend
// keeps its collections in. It defines the Store interface and three
// implementations: an in-memory map for tests and demos, a directory of JSON
// files that survives restarts, and a PostgreSQL table.
//
// Every entry carries a version that increases on each write, which lets
// callers perform optimistic read-modify-write cycles with CompareAndSet.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound        = errors.New("key not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidValue    = errors.New("value is not valid JSON")
	ErrEmptyKey        = errors.New("key is required")
)

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is a flat namespace of string keys mapping to UTF-8 JSON values.
type Store interface {
	// Get returns the value and its version, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, int64, error)
	// Set overwrites the value unconditionally and returns the new version.
	Set(ctx context.Context, key string, value []byte) (int64, error)
	// CompareAndSet writes only if the stored version equals expected.
	// An expected version of 0 means the key must not exist yet.
	CompareAndSet(ctx context.Context, key string, value []byte, expected int64) (int64, error)
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type memEntry struct {
	value   []byte
	version int64
}

// MemoryStore is a thread-safe, in-memory Store. Contents are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, int64, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	return cloneBytes(e.value), e.version, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) (int64, error) {
	if err := checkEntry(key, value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.entries[key].version + 1
	s.entries[key] = memEntry{value: cloneBytes(value), version: v}
	return v, nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, key string, value []byte, expected int64) (int64, error) {
	if err := checkEntry(key, value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[key].version != expected {
		return 0, ErrVersionConflict
	}
	v := expected + 1
	s.entries[key] = memEntry{value: cloneBytes(value), version: v}
	return v, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func checkEntry(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
