// Package kv 提供用于键值存储的接口和实现.
package kv

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/errs"
)

// Client 包装一个 KVStore 实现.
type Client struct {
	KVStore
	kvType KVType
}

// Type 返回底层实现类型.
func (c *Client) Type() KVType {
	return c.kvType
}

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值，不存在或已过期时返回 errs.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，可选过期时间.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键.
	Delete(ctx context.Context, key string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 获取匹配 glob 模式的键，空模式表示全部（用于调试）.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// KVType 键值存储类型.
type KVType string

const (
	KVTypeMemory     KVType = "memory"
	KVTypeRedis      KVType = "redis"
	KVTypeNATS       KVType = "nats"
	KVTypeGroupcache KVType = "groupcache"
)

// Shared 表示该实现的数据在多个进程间一致，可用于跨进程的处理标记.
func (t KVType) Shared() bool {
	return t == KVTypeRedis || t == KVTypeNATS
}

// KVFactory 定义创建 KVStore 的工厂函数类型.
type KVFactory func(ctx context.Context, config any) (KVStore, error)

// kvFactories 存储 KV 类型到工厂的映射.
var kvFactories = make(map[KVType]KVFactory)

// RegisterKVFactory 注册 KV 工厂函数.
func RegisterKVFactory(kvType KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的 KV 类型列表.
func GetRegisteredKVTypes() []KVType {
	types := make([]KVType, 0, len(kvFactories))
	for kvType := range kvFactories {
		types = append(types, kvType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// NewKVStore 根据类型创建 KVStore 实例.
func NewKVStore(ctx context.Context, kvType KVType, config any) (KVStore, error) {
	factory, exists := kvFactories[kvType]
	if !exists {
		return nil, fmt.Errorf("unsupported KV type: %s", kvType)
	}

	return factory(ctx, config)
}

// New 按配置创建 KV 客户端，各实现只拿到自己的子配置.
func New(ctx context.Context, cfg configs.KVConfig) (*Client, error) {
	kvType := KVType(cfg.Type)
	if kvType == "" {
		kvType = KVTypeMemory
	}

	var sub any

	switch kvType {
	case KVTypeRedis:
		sub = &cfg.Redis
	case KVTypeNATS:
		sub = &cfg.NATS
	case KVTypeGroupcache:
		sub = &cfg.Groupcache
	}

	store, err := NewKVStore(ctx, kvType, sub)
	if err != nil {
		return nil, err
	}

	return &Client{KVStore: store, kvType: kvType}, nil
}

// notFound 构造统一的键不存在错误.
func notFound(key string) error {
	return fmt.Errorf("%w: key %s", errs.ErrNotFound, key)
}

// matchKey 以 glob 规则匹配键，与 Redis KEYS 的常用写法保持一致.
func matchKey(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	ok, err := path.Match(pattern, key)

	return err == nil && ok
}
