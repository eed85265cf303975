package kv

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/docvault/pkg/configs"
)

// GroupcacheKV 本地写入、按键分片读取的 KV.
//
// 每个节点只保存自己写入的键. 本地未命中时通过 groupcache 向负责该键的节点取值，
// 取回的值会留在 groupcache 的热缓存里且无法失效，因此只适合不可变的值，
// 例如以文件 ID 为键的大小缓存. 处理标记这类会变化的状态不应放在这里.
type GroupcacheKV struct {
	group *groupcache.Group
	pool  *groupcache.HTTPPool // 未配置对等节点时为 nil

	mu   sync.RWMutex
	data map[string][]byte
	now  func() time.Time
}

// NewGroupcacheKV 创建 Groupcache KV 实例. 同名 group 在一个进程内只能创建一次.
func NewGroupcacheKV(_ context.Context, config any) (KVStore, error) {
	cfg, ok := config.(*configs.GroupcacheKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Groupcache config")
	}

	if groupcache.GetGroup(cfg.Name) != nil {
		return nil, fmt.Errorf("groupcache group %q already exists", cfg.Name)
	}

	g := &GroupcacheKV{data: make(map[string][]byte), now: time.Now}
	g.group = groupcache.NewGroup(cfg.Name, cfg.CacheBytes, groupcache.GetterFunc(g.fill))

	if len(cfg.Peers) > 0 {
		g.pool = groupcache.NewHTTPPoolOpts(cfg.Self, &groupcache.HTTPPoolOptions{BasePath: PeerBasePath})
		g.pool.Set(cfg.Peers...)
	}

	return g, nil
}

// PeerBasePath 节点间通信的 HTTP 路径前缀.
const PeerBasePath = "/_groupcache/"

// PeerHandler 返回节点间通信的 handler，未配置对等节点时为 nil.
func (g *GroupcacheKV) PeerHandler() http.Handler {
	if g.pool == nil {
		return nil
	}

	return g.pool
}

// fill 是负责该键的节点上的取值逻辑，只看本地数据.
func (g *GroupcacheKV) fill(_ context.Context, key string, dest groupcache.Sink) error {
	value, ok, err := g.local(key)
	if err != nil {
		return err
	}

	if !ok {
		return notFound(key)
	}

	return dest.SetBytes(value)
}

func (g *GroupcacheKV) local(key string) ([]byte, bool, error) {
	g.mu.RLock()
	raw, ok := g.data[key]
	g.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	value, alive, err := unwrap(raw, g.now())
	if err != nil || !alive {
		return nil, false, err
	}

	return value, true, nil
}

// Get 先查本地，未命中再经由 groupcache 查询负责该键的节点.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok, err := g.local(key)
	if err != nil {
		return nil, err
	}

	if ok {
		return bytes.Clone(value), nil
	}

	if g.pool == nil {
		return nil, notFound(key)
	}

	var data []byte
	if err := g.group.Get(ctx, key, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, notFound(key)
	}

	return data, nil
}

// Set 写入本地.
func (g *GroupcacheKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := wrap(value, ttl, g.now())
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.data[key] = raw
	g.mu.Unlock()

	return nil
}

// Delete 删除本地键，其它节点热缓存中的副本不受影响.
func (g *GroupcacheKV) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.data, key)
	g.mu.Unlock()

	return nil
}

// Exists 检查本地是否存在该键.
func (g *GroupcacheKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := g.local(key)

	return ok, err
}

// Keys 列出本地匹配模式且未过期的键.
func (g *GroupcacheKV) Keys(_ context.Context, pattern string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	keys := make([]string, 0, len(g.data))

	for key, raw := range g.data {
		if !matchKey(pattern, key) {
			continue
		}

		if _, alive, err := unwrap(raw, now); err == nil && alive {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close groupcache 没有需要释放的资源.
func (g *GroupcacheKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeGroupcache, NewGroupcacheKV)
}
