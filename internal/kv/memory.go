package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with real TTL semantics. It backs tests
// and local development when Redis is unreachable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	zsets   map[string]*memZSet
	now     func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memZSet struct {
	scores    map[string]float64
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		zsets:   make(map[string]*memZSet),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.liveEntry(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveEntry(key); ok {
		return false, nil
	}
	m.entries[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
		delete(m.zsets, k)
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveEntry(key); ok {
		return true, nil
	}
	_, ok := m.liveZSet(key)
	return ok, nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.liveZSet(key)
	if !ok {
		z = &memZSet{scores: make(map[string]float64)}
		m.zsets[key] = z
	}
	z.scores[member] = score
	return nil
}

func (m *MemoryStore) ZCount(_ context.Context, key string, min, max float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.liveZSet(key)
	if !ok {
		return 0, nil
	}
	var n int64
	for _, s := range z.scores {
		if s >= min && s <= max {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.liveEntry(key); ok {
		e.expiresAt = m.deadline(ttl)
		m.entries[key] = e
	}
	if z, ok := m.liveZSet(key); ok {
		z.expiresAt = m.deadline(ttl)
	}
	return nil
}

// SetClock overrides the time source. Test hook.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) liveEntry(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) liveZSet(key string) (*memZSet, bool) {
	z, ok := m.zsets[key]
	if !ok {
		return nil, false
	}
	if !z.expiresAt.IsZero() && !m.now().Before(z.expiresAt) {
		delete(m.zsets, key)
		return nil, false
	}
	return z, true
}
