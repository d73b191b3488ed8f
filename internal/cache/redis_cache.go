package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig настройки Redis кеша мешей
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// MaxTTL верхняя граница TTL одной записи
	MaxTTL time.Duration
	// ReadThroughTTL TTL записи, поднятой из ColdStorage
	ReadThroughTTL time.Duration

	// Write-Behind в ColdStorage
	WriteBehindInterval  time.Duration
	WriteBehindBatchSize int

	PoolSize    int
	PoolTimeout time.Duration
}

// RedisCache горячий кеш мешей в Redis.
// При промахе читает из ColdStorage (Read-Through), записи уходят в ColdStorage
// асинхронно пачками (Write-Behind).
type RedisCache struct {
	client      *redis.Client
	config      RedisConfig
	coldStorage ColdStorage
	invalidator Invalidator

	writeBehind     *writeBehind
	writeBehindStop chan struct{}
	writeBehindWg   sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache подключается к Redis. coldStorage и invalidator могут быть nil.
func NewRedisCache(config RedisConfig, coldStorage ColdStorage, invalidator Invalidator) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCache(rdb, config, coldStorage, invalidator), nil
}

func newRedisCache(rdb *redis.Client, config RedisConfig, coldStorage ColdStorage, invalidator Invalidator) *RedisCache {
	if config.MaxTTL == 0 {
		config.MaxTTL = time.Hour
	}
	if config.ReadThroughTTL == 0 {
		config.ReadThroughTTL = 5 * time.Minute
	}
	if config.WriteBehindInterval == 0 {
		config.WriteBehindInterval = 5 * time.Second
	}
	if config.WriteBehindBatchSize == 0 {
		config.WriteBehindBatchSize = 100
	}

	c := &RedisCache{
		client:      rdb,
		config:      config,
		coldStorage: coldStorage,
		invalidator: invalidator,
	}

	if coldStorage != nil {
		c.writeBehind = newWriteBehind(coldStorage, config.WriteBehindBatchSize)
		c.writeBehindStop = make(chan struct{})
		c.writeBehindWg.Add(1)
		go func() {
			defer c.writeBehindWg.Done()
			c.writeBehind.run(config.WriteBehindInterval, c.writeBehindStop)
		}()
		logging.Info("Write-Behind: интервал %v, пачка %d", config.WriteBehindInterval, config.WriteBehindBatchSize)
	}

	logging.Info("Redis cache initialized: %s (cold storage: %v)", config.Addr, coldStorage != nil)
	return c
}

// Get получает меш из Redis, при промахе пытается ColdStorage.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		r.hits.Add(1)
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	if r.coldStorage != nil {
		val, err := r.coldStorage.Load(ctx, key)
		if err == nil {
			r.hits.Add(1)
			// прогреваем Redis для следующих запросов
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := r.client.Set(ctx, key, val, r.config.ReadThroughTTL).Err(); err != nil {
					logging.Debug("Read-through set failed for %s: %v", key, err)
				}
			}()
			return val, nil
		}
		if !IsCacheMiss(err) {
			logging.Warn("Cold storage error for key %s: %v", key, err)
		}
	}

	r.misses.Add(1)
	return nil, ErrCacheMiss
}

// Set сохраняет меш в Redis и ставит его в очередь Write-Behind.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 || ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	if r.writeBehind != nil && !r.writeBehind.enqueue(&writeItem{Key: key, Value: value, TTL: ttl}) {
		// буфер полон, холодное хранилище догонит при следующем рендере
		logging.Warn("Write-behind buffer full, skipping key: %s", key)
	}
	return nil
}

// Delete удаляет меш из Redis и ColdStorage этого узла, отменяя отложенную запись ключа.
// ColdStorage чистится первым, чтобы Get не прогрел Redis удалённым значением.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if r.writeBehind != nil {
		if err := r.writeBehind.forget(ctx, key); err != nil {
			return fmt.Errorf("cold storage delete: %w", err)
		}
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Invalidate удаляет меш и уведомляет другие узлы.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := r.Delete(ctx, key); err != nil {
		return err
	}
	publishAsync(r.invalidator, key, logging.Error)
	return nil
}

// Close останавливает Write-Behind и закрывает соединение.
func (r *RedisCache) Close() error {
	if r.writeBehindStop != nil {
		close(r.writeBehindStop)
		r.writeBehindWg.Wait()
	}

	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}

	logging.Info("Redis cache closed")
	return nil
}

func (r *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	keys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		keys = -1
	}
	return newStats(r.hits.Load(), r.misses.Load(), keys)
}
