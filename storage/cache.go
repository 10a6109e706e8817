package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"lockd-api/domain"
)

type accountReader interface {
	FetchTodoList(ctx context.Context, owner string) (*domain.TodoList, error)
	FetchInbox(ctx context.Context, owner string) (*domain.NotificationInbox, error)
	FetchRecord(ctx context.Context, addr Address) (*Record, error)
}

// Cache wraps an account reader with Redis-backed caching for the identity
// read paths. Raw record fetches bypass the cache: external callers use them
// to observe committed state.
type Cache struct {
	base  accountReader
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching reader using the provided Redis client and TTL.
func NewCache(base accountReader, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base reader is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTodoList(ctx context.Context, owner string) (*domain.TodoList, error) {
	if data, ok := c.loadCached(ctx, ledgerCacheKey(owner)); ok {
		if l, err := DecodeTodoList(data); err == nil {
			return l, nil
		}
		c.drop(ctx, ledgerCacheKey(owner))
	}

	l, err := c.base.FetchTodoList(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, ledgerCacheKey(owner), l)
	return l, nil
}

func (c *Cache) FetchInbox(ctx context.Context, owner string) (*domain.NotificationInbox, error) {
	if data, ok := c.loadCached(ctx, inboxCacheKey(owner)); ok {
		if in, err := DecodeInbox(data); err == nil {
			return in, nil
		}
		c.drop(ctx, inboxCacheKey(owner))
	}

	in, err := c.base.FetchInbox(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, inboxCacheKey(owner), in)
	return in, nil
}

func (c *Cache) FetchRecord(ctx context.Context, addr Address) (*Record, error) {
	return c.base.FetchRecord(ctx, addr)
}

// Evict drops cached reads for every identity a command touched.
func (c *Cache) Evict(ctx context.Context, owners ...string) {
	if c.redis == nil || len(owners) == 0 {
		return
	}
	keys := make([]string, 0, len(owners)*2)
	for _, owner := range owners {
		keys = append(keys, ledgerCacheKey(owner), inboxCacheKey(owner))
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) loadCached(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) storeCached(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) drop(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func ledgerCacheKey(owner string) string {
	return "ledger:" + owner
}

func inboxCacheKey(owner string) string {
	return "inbox:" + owner
}
