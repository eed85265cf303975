// Package processing 记录正在进行后处理（OCR、缩略图）的文件.
//
// 文件 ID 在集合中表示其派生内容尚不可信.Tracker 作为显式的服务对象注入使用方，
// 单进程部署使用 Memory，多进程部署使用基于 KV 的实现.
package processing

import (
	"context"
	"sync"
)

// Tracker 正在处理的文件集合，所有方法都是并发安全且幂等的.
type Tracker interface {
	// Begin 将文件加入集合.
	Begin(ctx context.Context, fileID string) error
	// End 将文件移出集合，文件不在集合中时不报错.
	End(ctx context.Context, fileID string) error
	// IsProcessing 判断文件是否在集合中.
	IsProcessing(ctx context.Context, fileID string) (bool, error)
}

// Memory 进程内集合.
type Memory struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemory 创建空集合.
func NewMemory() *Memory {
	return &Memory{ids: make(map[string]struct{})}
}

func (m *Memory) Begin(_ context.Context, fileID string) error {
	m.mu.Lock()
	m.ids[fileID] = struct{}{}
	m.mu.Unlock()

	return nil
}

func (m *Memory) End(_ context.Context, fileID string) error {
	m.mu.Lock()
	delete(m.ids, fileID)
	m.mu.Unlock()

	return nil
}

func (m *Memory) IsProcessing(_ context.Context, fileID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.ids[fileID]
	m.mu.RUnlock()

	return ok, nil
}

// Len 集合大小.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.ids)
}
