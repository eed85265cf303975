//go:build !no_redis

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeisme/docvault/pkg/configs"
)

// redisScanCount SCAN 每批返回的建议数量.
const redisScanCount = 256

// RedisKV 基于 Redis 的 KV 实现，TTL 交给 Redis 原生过期.
// 所有键加上配置的前缀，多个部署可以共用一个实例.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV 创建 Redis KV 实例.
func NewRedisKV(ctx context.Context, config any) (KVStore, error) {
	cfg, ok := config.(*configs.RedisKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Redis config")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisKV{client: rdb, prefix: cfg.Prefix}, nil
}

func (r *RedisKV) key(k string) string { return r.prefix + k }

// Get 获取键的值.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}

	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return b, nil
}

// Set 设置键的值，ttl<=0 表示不过期.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete 删除键.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

// Exists 检查键是否存在.
func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}

	return n > 0, nil
}

// Keys 用 SCAN 遍历匹配的键，返回时去掉前缀.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string

	iter := r.client.Scan(ctx, 0, r.key(pattern), redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	return keys, nil
}

// Ping 检查连接，供健康检查使用.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

func init() {
	RegisterKVFactory(KVTypeRedis, NewRedisKV)
}
