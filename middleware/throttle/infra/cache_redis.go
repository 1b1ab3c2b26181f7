package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"throttle-gateway/middleware/throttle/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCache é o backend de cache compartilhado do throttle.
//
// SETNX cobre o Add (create-if-absent) e INCR cobre o Increment, ambos
// atômicos no servidor — exatamente o que o limiter exige para funcionar
// com N instâncias do gateway atrás de um balanceador.
type RedisCache struct {
	rdb *redis.Client

	prefix string
}

type RedisCacheOption func(*RedisCache)

func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		c.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisCache(rdb *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		rdb:    rdb,
		prefix: "throttle",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// backendErr marca falhas de infraestrutura com o sentinel do domínio,
// preservando a causa. Miss nunca passa por aqui.
func backendErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}

func (c *RedisCache) Get(ctx context.Context, key string, def int64) (int64, error) {
	v, err := c.rdb.Get(ctx, c.key(key)).Int64()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return 0, backendErr(err)
	}
	return v, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, value int64, ttlSeconds int) error {
	if err := c.rdb.Set(ctx, c.key(key), value, secs(ttlSeconds)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

func (c *RedisCache) Add(ctx context.Context, key string, value int64, ttlSeconds int) (bool, error) {
	added, err := c.rdb.SetNX(ctx, c.key(key), value, secs(ttlSeconds)).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return added, nil
}

func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Incr(ctx, c.key(key)).Result()
	if err != nil {
		return 0, backendErr(err)
	}
	return v, nil
}

func (c *RedisCache) Forget(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return backendErr(err)
	}
	return nil
}

func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, backendErr(err)
	}
	return n > 0, nil
}

func secs(ttlSeconds int) time.Duration {
	if ttlSeconds <= 0 {
		return 0
	}
	return time.Duration(ttlSeconds) * time.Second
}
