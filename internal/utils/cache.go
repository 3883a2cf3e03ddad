package utils

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem[V any] struct {
	Data      V
	ExpiresAt time.Time // 零值表示永不过期
}

// ExpiringCache 基于 LRU 的本地缓存，容量有限，条目可带 TTL
type ExpiringCache[V any] struct {
	lruCache *lru.Cache[string, CacheItem[V]]
	ttl      time.Duration
	now      func() time.Time
}

// NewExpiringCache creates a cache holding at most size entries. A ttl of zero keeps
// entries until they are evicted or deleted.
func NewExpiringCache[V any](size int, ttl time.Duration) (*ExpiringCache[V], error) {
	l, err := lru.New[string, CacheItem[V]](size)
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	return &ExpiringCache[V]{lruCache: l, ttl: ttl, now: time.Now}, nil
}

// Set 设置缓存，使用缓存默认 TTL
func (c *ExpiringCache[V]) Set(key string, data V) {
	c.SetWithTTL(key, data, c.ttl)
}

// SetWithTTL 设置缓存，TTL 为过期时间
func (c *ExpiringCache[V]) SetWithTTL(key string, data V, ttl time.Duration) {
	item := CacheItem[V]{Data: data}
	if ttl > 0 {
		item.ExpiresAt = c.now().Add(ttl)
	}
	c.lruCache.Add(key, item)
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *ExpiringCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.lruCache.Get(key)
	if !ok {
		return zero, false
	}

	// 检查过期
	if !val.ExpiresAt.IsZero() && c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return zero, false
	}

	return val.Data, true
}

// Take returns the entry and removes it, so a value can be consumed at most once.
func (c *ExpiringCache[V]) Take(key string) (V, bool) {
	val, ok := c.Get(key)
	// 并发 Take 时只有成功移除的一方拿到值
	if !ok || !c.lruCache.Remove(key) {
		var zero V
		return zero, false
	}
	return val, true
}

// Delete 删除指定缓存
func (c *ExpiringCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *ExpiringCache[V]) Len() int {
	return c.lruCache.Len()
}

// Purge 清空缓存
func (c *ExpiringCache[V]) Purge() {
	c.lruCache.Purge()
}
