package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
	done chan struct{}
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{done: make(chan struct{}, 16)}
}

func (r *recordingInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	return nil
}

func (r *recordingInvalidator) Close() error { return nil }

func TestMeshKey(t *testing.T) {
	assert.Equal(t, "mesh:abc:1:-2:3", MeshKey("abc", 1, -2, 3))
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, nil)

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.Equal(t, ErrInvalidKey, c.Set(ctx, "", []byte("v"), 0))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Keys)
	assert.InDelta(t, 0.5, stats.HitRatio, 1e-9)
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, nil)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Zero(t, c.Stats().Keys)
}

func TestMemoryCacheExpiredCleanupKeepsFreshValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, nil)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Second))
	now = now.Add(time.Minute)

	// Get увидел истёкшую запись, но до очистки Set успел записать новую
	require.NoError(t, c.Set(ctx, "k", []byte("fresh"), time.Minute))
	c.deleteIfExpired("k")

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), got)

	now = now.Add(time.Hour)
	c.deleteIfExpired("k")
	assert.Zero(t, c.Stats().Keys)
}

func TestMemoryCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, nil)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
	assert.Equal(t, int64(2), c.Stats().Keys)

	// перезапись существующего ключа не вытесняет
	require.NoError(t, c.Set(ctx, "c", []byte("4"), 0))
	assert.Equal(t, int64(2), c.Stats().Keys)
}

func TestMemoryCacheInvalidatePublishes(t *testing.T) {
	ctx := context.Background()
	inv := newRecordingInvalidator()
	c := NewMemoryCache(0, inv)

	require.NoError(t, c.Set(ctx, "mesh:v:0:0:0", []byte("x"), 0))
	require.NoError(t, c.Invalidate(ctx, "mesh:v:0:0:0"))

	_, err := c.Get(ctx, "mesh:v:0:0:0")
	assert.ErrorIs(t, err, ErrCacheMiss)

	select {
	case <-inv.done:
	case <-time.After(time.Second):
		t.Fatal("инвалидация не разослана")
	}
	inv.mu.Lock()
	assert.Equal(t, []string{"mesh:v:0:0:0"}, inv.keys)
	inv.mu.Unlock()

	// Delete действует только локально
	require.NoError(t, c.Delete(ctx, "other"))
	select {
	case <-inv.done:
		t.Fatal("Delete не должен рассылать инвалидацию")
	case <-time.After(50 * time.Millisecond):
	}
}
