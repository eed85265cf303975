// Package dao 定义文件与用户元数据的访问接口，并提供基于 GORM 的实现.
package dao

import (
	"context"
	crand "crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
)

// FileDao 文件元数据访问接口.
type FileDao interface {
	// Create 写入新文件，ID 为空时生成 ULID.
	Create(ctx context.Context, file *model.File) error
	// GetByID 按 ID 读取，包含已软删除的记录.
	GetByID(ctx context.Context, id string) (*model.File, error)
	// GetActiveByID 按 ID 读取未删除的记录.
	GetActiveByID(ctx context.Context, id string) (*model.File, error)
	// GetByDocumentID 返回文档下用户可见的最新版本文件，按 Order 排序.
	GetByDocumentID(ctx context.Context, userID, documentID string) ([]model.File, error)
	// GetVersions 返回同一版本组的全部文件，按版本号排序.
	GetVersions(ctx context.Context, versionID string) ([]model.File, error)
	// FindByChecksum 查找用户名下内容相同的未删除文件.
	FindByChecksum(ctx context.Context, userID, checksum string, size int64) (*model.File, error)
	// Supersede 将仍是最新版本的文件标记为旧版本并写入版本组 ID，返回是否更新.
	// 已被其他写入者取代的文件返回 false.
	Supersede(ctx context.Context, id, versionID string) (bool, error)
	// MarkLatest 将文件重新标记为最新版本，用于撤销 Supersede.
	MarkLatest(ctx context.Context, id string) error
	// Update 保存整行.
	Update(ctx context.Context, file *model.File) error
	// UpdateContent 写入提取出的文本.
	UpdateContent(ctx context.Context, id, content string) error
	// SoftDelete 标记删除.
	SoftDelete(ctx context.Context, id string) error
	// Restore 取消删除标记.
	Restore(ctx context.Context, id string) error
	// HardDelete 物理删除记录，用于回滚.
	HardDelete(ctx context.Context, id string) error
	// Transaction 在一个事务中执行 fn，fn 返回错误时回滚.
	Transaction(ctx context.Context, fn func(files FileDao) error) error
}

// UserDao 用户访问接口.
type UserDao interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	// UpdateQuota 保存用户的当前用量.
	UpdateQuota(ctx context.Context, user *model.User) error
	// GetGlobalStorageCurrent 返回全部用户用量之和.
	GetGlobalStorageCurrent(ctx context.Context) (int64, error)
}

// AtomicQuotaUpdater 由支持条件更新的 UserDao 实现.
type AtomicQuotaUpdater interface {
	// AddStorageIfWithinQuota 仅当 current+delta <= quota 时增加用量，返回是否更新.
	AddStorageIfWithinQuota(ctx context.Context, userID string, delta int64) (bool, error)
	// ReleaseStorage 减少用量，不低于 0.
	ReleaseStorage(ctx context.Context, userID string, delta int64) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewID 生成按时间排序的文件 ID.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// notFound 将 gorm 的未找到错误转换为 errs.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Wrap(errs.ErrNotFound, err)
	}

	return err
}
