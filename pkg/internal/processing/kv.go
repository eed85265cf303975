package processing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yeisme/docvault/pkg/internal/storage/kv"
)

// KeyPrefix KV 中处理标记的键前缀.
const KeyPrefix = "processing:"

// DefaultTTL 处理标记的默认存活时间，处理进程崩溃时标记会自动过期.
const DefaultTTL = time.Hour

// KV 基于键值存储的集合，可在多个进程之间共享.
type KV struct {
	store kv.KVStore
	ttl   time.Duration
}

// NewKV 创建基于 KV 的集合，ttl <= 0 时使用 DefaultTTL.
func NewKV(store kv.KVStore, ttl time.Duration) *KV {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &KV{store: store, ttl: ttl}
}

func (k *KV) Begin(ctx context.Context, fileID string) error {
	if err := k.store.Set(ctx, KeyPrefix+fileID, []byte(time.Now().UTC().Format(time.RFC3339)), k.ttl); err != nil {
		return fmt.Errorf("mark %s processing: %w", fileID, err)
	}

	return nil
}

func (k *KV) End(ctx context.Context, fileID string) error {
	if err := k.store.Delete(ctx, KeyPrefix+fileID); err != nil {
		return fmt.Errorf("clear %s processing: %w", fileID, err)
	}

	return nil
}

func (k *KV) IsProcessing(ctx context.Context, fileID string) (bool, error) {
	return k.store.Exists(ctx, KeyPrefix+fileID)
}

// List 返回当前集合中的文件 ID.
func (k *KV) List(ctx context.Context) ([]string, error) {
	keys, err := k.store.Keys(ctx, KeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, KeyPrefix))
	}

	return ids, nil
}
