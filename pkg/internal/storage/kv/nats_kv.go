package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/yeisme/docvault/pkg/configs"
)

// NATSKV 基于 JetStream KeyValue 的实现.
// NATS 的键不允许 ':'，写入前替换为 '.'，读取键列表时还原.
// 逐键 TTL 通过值包装实现，bucket 的 MaxAge 只作为兜底.
type NATSKV struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// NewNATSKV 连接 NATS 并创建或更新 bucket.
func NewNATSKV(ctx context.Context, config any) (KVStore, error) {
	cfg, ok := config.(*configs.NATSKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid NATS config")
	}

	opts := []nats.Option{nats.Name(configs.AppName + "-kv")}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "docvault processing markers and size cache",
		TTL:         cfg.MaxAge,
		Replicas:    max(cfg.Replicas, 1),
	})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKV{conn: nc, kv: kv}, nil
}

func toNATSKey(key string) string   { return strings.ReplaceAll(key, ":", ".") }
func fromNATSKey(key string) string { return strings.ReplaceAll(key, ".", ":") }

// load 返回未过期的值，过期的键顺带删除.
func (n *NATSKV) load(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(ctx, toNATSKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("nats kv get %s: %w", key, err)
	}

	value, alive, err := unwrap(entry.Value(), time.Now())
	if err != nil {
		return nil, false, err
	}

	if !alive {
		// 只删除读到的那个修订，避免误删并发写入
		_ = n.kv.Delete(ctx, toNATSKey(key), jetstream.LastRevision(entry.Revision()))

		return nil, false, nil
	}

	return value, true, nil
}

// Get 获取键的值.
func (n *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok, err := n.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, notFound(key)
	}

	return value, nil
}

// Set 设置键的值.
func (n *NATSKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := wrap(value, ttl, time.Now())
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(ctx, toNATSKey(key), raw); err != nil {
		return fmt.Errorf("nats kv put %s: %w", key, err)
	}

	return nil
}

// Delete 删除键.
func (n *NATSKV) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, toNATSKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats kv delete %s: %w", key, err)
	}

	return nil
}

// Exists 检查键是否存在.
func (n *NATSKV) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := n.load(ctx, key)

	return ok, err
}

// Keys 列出匹配模式且未过期的键.
func (n *NATSKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats kv list keys: %w", err)
	}

	defer func() { _ = lister.Stop() }()

	var keys []string

	for raw := range lister.Keys() {
		key := fromNATSKey(raw)
		if !matchKey(pattern, key) {
			continue
		}

		if _, ok, err := n.load(ctx, key); err == nil && ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close 关闭 NATS 连接.
func (n *NATSKV) Close() error {
	n.conn.Close()

	return nil
}

func init() {
	RegisterKVFactory(KVTypeNATS, NewNATSKV)
}
