package infra

import (
	"context"
	"sync"
	"time"
)

// MemoryCache é um backend de cache em memória para o throttle, com TTL por
// entrada e limpeza periódica. Atende um processo só — para múltiplas
// instâncias atrás de um balanceador, use o RedisCache.
//
// Add e Increment são atômicos sob o mutex, que é o requisito do limiter.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry

	now          func() time.Time
	cleanupEvery time.Duration
}

type memEntry struct {
	value int64
	// expiresAt zero = sem expiração.
	expiresAt time.Time
}

type MemoryCacheOption func(*MemoryCache)

// WithCacheClock injeta o relógio (testes de rollover de janela sem sleep).
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) { c.now = now }
}

func WithCacheCleanupEvery(d time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) { c.cleanupEvery = d }
}

func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries:      make(map[string]memEntry),
		now:          time.Now,
		cleanupEvery: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// live retorna a entrada se existir e não estiver vencida.
// Entrada vencida é removida na leitura (lazy), além da limpeza periódica.
// Chamador deve segurar o mutex.
func (c *MemoryCache) live(key string) (memEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (c *MemoryCache) Get(_ context.Context, key string, def int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		return def, nil
	}
	return e.value, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, value int64, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memEntry{value: value, expiresAt: c.deadline(ttlSeconds)}
	return nil
}

func (c *MemoryCache) Add(_ context.Context, key string, value int64, ttlSeconds int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.entries[key] = memEntry{value: value, expiresAt: c.deadline(ttlSeconds)}
	return true, nil
}

func (c *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		// chave ausente conta como zero; sem TTL, igual a um INCR do Redis.
		c.entries[key] = memEntry{value: 1}
		return 1, nil
	}
	e.value++
	c.entries[key] = e
	return e.value, nil
}

func (c *MemoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.live(key)
	return ok, nil
}

func (c *MemoryCache) deadline(ttlSeconds int) time.Time {
	if ttlSeconds <= 0 {
		return time.Time{}
	}
	return c.now().Add(time.Duration(ttlSeconds) * time.Second)
}

func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove entradas vencidas periodicamente.
// Pare cancelando o contexto.
func (c *MemoryCache) StartJanitor(ctx DoneContext) {
	if c.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(c.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
