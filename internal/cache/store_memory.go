package cache

import (
	"context"
	"sync"
)

// NewMemoryStore returns a Store backed by an in-memory map. This is the
// session-scoped default: entries live as long as the process.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]RawEntry)}
}

// MemoryStore implements Store for single-process use and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]RawEntry
}

// Get retrieves the raw entry under key.
func (s *MemoryStore) Get(_ context.Context, key string) (RawEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return RawEntry{}, ErrMiss
	}
	return entry, nil
}

// Set stores the raw entry under key, replacing any existing one.
func (s *MemoryStore) Set(_ context.Context, key string, entry RawEntry) error {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes the entry under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries. Useful for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
