package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryKV is an in-process KeyValueCache used when Redis is not configured
// and in tests.
type MemoryKV struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

var (
	_ KeyValueCache = (*MemoryKV)(nil)
	_ PrefixDeleter = (*MemoryKV)(nil)
)

// NewMemoryKV creates an empty in-process backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryKV) expired(item memoryItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && !now.Before(item.expiresAt)
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if m.expired(item, m.now()) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: make([]byte, len(value))}
	copy(item.value, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryKV) Scan(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var keys []string
	for k, item := range m.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if m.expired(item, now) {
			delete(m.items, k)
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryKV) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	now := m.now()
	if !ok || m.expired(item, now) {
		return 0, ErrMiss
	}
	if item.expiresAt.IsZero() {
		return -1, nil
	}
	return item.expiresAt.Sub(now), nil
}

// DeletePrefix removes every key starting with prefix under a single lock.
func (m *MemoryKV) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
			removed++
		}
	}
	return removed, nil
}
