// Package checkpoint persists signing progress so an interrupted session can
// resume where it stopped.
//
// A Store is a plain key-value port. Journal sits on top of it: it derives
// the storage key from the signing token, seals each snapshot in a digest
// envelope with an expiry and discards anything stale or damaged on load.
//
// Backends:
//   - memory: process-local, used by tests and one-shot CLI runs
//   - sqlite: a single database file (default for the desktop client)
//   - redis:  shared store with native key expiry
//   - file:   one file per token under a directory, flock-guarded
package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no checkpoint exists for a key.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrExpired is returned when a checkpoint outlived its TTL.
	ErrExpired = errors.New("checkpoint: expired")
	// ErrCorrupt is returned when a checkpoint fails its digest check or
	// cannot be decoded.
	ErrCorrupt = errors.New("checkpoint: corrupt")
)

// Store is the persistence port for sealed checkpoints.
type Store interface {
	// Get returns the stored bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores data under key. A positive ttl lets backends that support
	// native expiry drop the entry on their own.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Clear removes key. Clearing a missing key is not an error.
	Clear(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }
