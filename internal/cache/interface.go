package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MeshCache кеш готовых мешей чанков (значения: закодированные байты).
//
// Использование:
//
//	c := NewMemoryCache(0, nil)
//	data, err := c.Get(ctx, MeshKey(version, 0, 0, 0))
//	err = c.Set(ctx, key, data, 10*time.Minute)
//	err = c.Invalidate(ctx, key)
type MeshCache interface {
	// Get возвращает значение по ключу или ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение. TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ только на этом узле.
	Delete(ctx context.Context, key string) error

	// Invalidate удаляет ключ и рассылает уведомление другим узлам.
	Invalidate(ctx context.Context, key string) error

	Close() error

	// Stats возвращает счётчики попаданий и промахов.
	Stats() Stats
}

// ColdStorage постоянное хранилище мешей за горячим кешем.
type ColdStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Invalidator рассылает инвалидации между узлами через Pub/Sub.
type Invalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации ключа.
type InvalidationHandler func(key string) error

// Stats счётчики кеша
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
	Keys     int64   `json:"keys"`
}

func newStats(hits, misses, keys int64) Stats {
	s := Stats{Hits: hits, Misses: misses, Keys: keys}
	if total := hits + misses; total > 0 {
		s.HitRatio = float64(hits) / float64(total)
	}
	return s
}

// Ошибки кеша
var (
	ErrCacheMiss  = NewCacheError("cache miss")
	ErrInvalidKey = NewCacheError("invalid key")
)

// CacheError ошибка кеша
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}

func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// AtlasKey ключ инвалидации атласа текстур: получатели сбрасывают атлас в памяти
const AtlasKey = "atlas"

// MeshKey ключ меша чанка: mesh:<версия атласа>:<x>:<y>:<z>.
// Смена атласа меняет версию, и старые меши больше не читаются.
func MeshKey(atlasVersion string, x, y, z int) string {
	return fmt.Sprintf("mesh:%s:%d:%d:%d", atlasVersion, x, y, z)
}

// publishAsync рассылает инвалидацию, не блокируя вызывающего
func publishAsync(inv Invalidator, key string, logf func(format string, args ...interface{})) {
	if inv == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inv.PublishInvalidation(ctx, key); err != nil {
			logf("Не удалось разослать инвалидацию %s: %v", key, err)
		}
	}()
}
