package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
)

// DefaultMaxEntries предел записей MemoryCache по умолчанию
const DefaultMaxEntries = 4096

type memoryEntry struct {
	value   []byte
	expires time.Time // нулевое: без истечения
}

// MemoryCache кеш мешей в памяти процесса с TTL.
// Используется, когда Redis не настроен.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int

	invalidator Invalidator
	now         func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache создаёт кеш. maxEntries <= 0: DefaultMaxEntries; invalidator может быть nil.
func NewMemoryCache(maxEntries int, invalidator Invalidator) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		entries:     make(map[string]memoryEntry),
		maxEntries:  maxEntries,
		invalidator: invalidator,
		now:         time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || m.expired(e) {
		if ok {
			m.deleteIfExpired(key)
		}
		m.misses.Add(1)
		return nil, ErrCacheMiss
	}

	m.hits.Add(1)
	return e.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Invalidate(ctx context.Context, key string) error {
	if err := m.Delete(ctx, key); err != nil {
		return err
	}
	publishAsync(m.invalidator, key, logging.Error)
	return nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Stats() Stats {
	m.mu.RLock()
	keys := int64(len(m.entries))
	m.mu.RUnlock()
	return newStats(m.hits.Load(), m.misses.Load(), keys)
}

// deleteIfExpired перепроверяет запись под блокировкой записи: между RUnlock и Lock
// ключ мог получить свежее значение через Set
func (m *MemoryCache) deleteIfExpired(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && m.expired(e) {
		delete(m.entries, key)
	}
}

func (m *MemoryCache) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}

// evictLocked удаляет истёкшие записи; если места всё равно нет: произвольную
func (m *MemoryCache) evictLocked() {
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	for k := range m.entries {
		delete(m.entries, k)
		break
	}
}
