package kv

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryKV 进程内 KV，带 TTL 的值在读取时惰性过期.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
	now  func() time.Time
}

// NewMemoryKV 创建内存 KV 实例.
func NewMemoryKV(_ context.Context, _ any) (KVStore, error) {
	return &MemoryKV{data: make(map[string][]byte), now: time.Now}, nil
}

// load 返回未过期的值，过期的键顺带删除.
func (m *MemoryKV) load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	value, alive, err := unwrap(raw, m.now())
	if err != nil {
		return nil, false, err
	}

	if !alive {
		m.mu.Lock()
		// 期间可能被重新写入
		if cur, ok := m.data[key]; ok && bytes.Equal(cur, raw) {
			delete(m.data, key)
		}
		m.mu.Unlock()

		return nil, false, nil
	}

	return value, true, nil
}

// Get 获取键的值.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	value, ok, err := m.load(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, notFound(key)
	}

	return bytes.Clone(value), nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := wrap(value, ttl, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

// Exists 检查键是否存在.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok, err := m.load(key)

	return ok, err
}

// Keys 获取匹配模式且未过期的键.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	candidates := make([]string, 0, len(m.data))

	for k := range m.data {
		if matchKey(pattern, k) {
			candidates = append(candidates, k)
		}
	}
	m.mu.RUnlock()

	keys := candidates[:0]

	for _, k := range candidates {
		if _, ok, err := m.load(k); err == nil && ok {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// Close 内存实现无需释放.
func (m *MemoryKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeMemory, NewMemoryKV)
}
