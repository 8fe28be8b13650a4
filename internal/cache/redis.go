package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

// RedisCache is a JSON-encoding cache over a Redis client. All operations
// run through a circuit breaker so a dead Redis degrades to cache misses
// instead of per-request timeouts.
type RedisCache struct {
	client  *redis.Client
	breaker *CircuitBreaker
	ctx     context.Context
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisCache{
		client:  rdb,
		breaker: NewCircuitBreaker(nil),
		ctx:     context.Background(),
	}
}

// Client exposes the underlying connection for components that share it,
// such as the job queue.
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Set(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
			return fmt.Errorf("failed to set cache: %w", err)
		}
		return nil
	})
}

func (r *RedisCache) Get(key string, dest interface{}) error {
	var data string
	err := r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		result, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				// A miss is not a backend failure; report it without
				// tripping the breaker.
				data = ""
				return nil
			}
			return fmt.Errorf("failed to get from cache: %w", err)
		}
		data = result
		return nil
	})
	if err != nil {
		return err
	}

	if data == "" {
		return ErrCacheMiss
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	return r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		return r.client.Del(ctx, key).Err()
	})
}

func (r *RedisCache) DeletePattern(pattern string) error {
	return r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		defer cancel()

		keys, err := r.client.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("failed to get keys for pattern %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			return r.client.Del(ctx, keys...).Err()
		}
		return nil
	})
}

func (r *RedisCache) Exists(key string) (bool, error) {
	var found bool
	err := r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		result, err := r.client.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		found = result > 0
		return nil
	})
	return found, err
}

func (r *RedisCache) Health() error {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"breaker":       r.breaker.Stats(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
