package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memoryEntry is a stored value with an optional expiry deadline.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means permanent
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store backed by a mutex-guarded map.
// Expired entries are reaped lazily on access. Suitable for tests and
// single-process deployments; use RedisStore when generations must be
// coordinated across processes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the store's time source. Test hook.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get reads the value at key into dest.
func (m *MemoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && entry.expired(m.now()) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := decodeValue(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set writes value at key, overwriting unconditionally.
func (m *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// TryAcquire stores value at key iff no live entry exists.
// The existence check and the write happen under one mutex hold, which is the
// atomicity the Store contract requires of backends.
func (m *MemoryStore) TryAcquire(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("cache: TryAcquire requires a positive ttl")
	}

	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok && !existing.expired(m.now()) {
		return false, nil
	}
	m.entries[key] = memoryEntry{data: data, expiresAt: m.now().Add(ttl)}
	return true, nil
}

// Delete removes the entry at key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStore) Close() error {
	return nil
}

// Verify MemoryStore implements the Store interface.
var _ Store = (*MemoryStore)(nil)
