// Package cache 提供基于键值存储的泛型缓存实现.
//
// 每个 Cache 拥有一个命名空间，键在写入 KV 时加上 "<namespace>:" 前缀，
// 多个缓存可以共享同一个 KV 实例而互不干扰.
//
// 基本用法:
//
//	sizes := cache.NewCache(kvClient, "size")
//
//	n, err := cache.GetOrSet(ctx, sizes, fileID, func() (int64, error) {
//	    return measure(fileID)
//	}, 10*time.Minute)
//
// 缓存未命中以 errs.ErrNotFound 表示，GetOrSet 只在未命中时调用 getter，
// KV 故障会直接返回，避免在缓存不可用时放大后端压力.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore   kv.KVStore
	namespace string
}

// NewCache 创建一个新的缓存实例.
func NewCache(kvStore kv.KVStore, namespace string) *Cache {
	return &Cache{
		kvStore:   kvStore,
		namespace: strings.TrimSuffix(namespace, ":"),
	}
}

func (c *Cache) key(k string) string {
	if c.namespace == "" {
		return k
	}

	return c.namespace + ":" + k
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, c.key(key))
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, c.key(key), data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, c.key(key))
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, c.key(key))
}

// GetOrSet 获取缓存值，未命中时调用 getter 并写回.
// 写回失败不影响返回值.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	var zero T

	value, err := Get[T](ctx, c, key)
	if err == nil {
		return value, nil
	}

	if !errors.Is(err, errs.ErrNotFound) {
		return zero, err
	}

	value, err = getter()
	if err != nil {
		return zero, err
	}

	_ = Set(ctx, c, key, value, ttl)

	return value, nil
}

// Clear 清空命名空间内的键.
func (c *Cache) Clear(ctx context.Context) error {
	pattern := "*"
	if c.namespace != "" {
		pattern = c.namespace + ":*"
	}

	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil {
			return delErr
		}
	}

	return nil
}
