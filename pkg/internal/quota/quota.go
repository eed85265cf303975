// Package quota 维护用户与全局的存储用量.
//
// 写入流程分两步：Check 在拷贝前只读地检查用户与全局上限，Commit 在拷贝成功后记账.
// UserDao 实现 dao.AtomicQuotaUpdater 时，Commit 是一条条件 UPDATE，同一用户的并发上传
// 不会越过用户上限；否则退化为读改写，并发上传可能造成与并发数成正比的超额.
// 全局上限在 Check 与 Commit 中各检查一次，Commit 用实际写入的字节数，
// 并发上传之间仍可能超额，超额不超过同时在途的上传量.
package quota

import (
	"context"
	"fmt"

	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/errs"
)

// Unlimited 未配置全局上限.
const Unlimited int64 = -1

// Ledger 配额账本.
type Ledger struct {
	users  dao.UserDao
	atomic dao.AtomicQuotaUpdater
	global int64
}

// NewLedger 创建账本，globalCeiling < 0 表示不限制全局用量.
func NewLedger(users dao.UserDao, globalCeiling int64) *Ledger {
	l := &Ledger{users: users, global: globalCeiling}
	if a, ok := users.(dao.AtomicQuotaUpdater); ok {
		l.atomic = a
	}

	return l
}

// GlobalCeiling 返回全局上限.
func (l *Ledger) GlobalCeiling() int64 {
	return l.global
}

// Atomic 提交是否为条件更新.
func (l *Ledger) Atomic() bool {
	return l.atomic != nil
}

// Check 检查写入 size 字节后是否仍在用户与全局上限内，不修改任何状态.
func (l *Ledger) Check(ctx context.Context, userID string, size int64) error {
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	if user.StorageCurrent+size > user.StorageQuota {
		return fmt.Errorf("%w: user %s uses %d of %d, needs %d more",
			errs.ErrQuotaExceeded, userID, user.StorageCurrent, user.StorageQuota, size)
	}

	return l.checkGlobal(ctx, size)
}

func (l *Ledger) checkGlobal(ctx context.Context, size int64) error {
	if l.global < 0 {
		return nil
	}

	total, err := l.users.GetGlobalStorageCurrent(ctx)
	if err != nil {
		return fmt.Errorf("load global usage: %w", err)
	}

	if total+size > l.global {
		return fmt.Errorf("%w: %d of %d used, needs %d more", errs.ErrGlobalQuotaExceeded, total, l.global, size)
	}

	return nil
}

// Commit 记录已写入的 size 字节.
// 超过全局上限或条件更新失败时返回 ErrQuotaExceeded，用量保持不变.
func (l *Ledger) Commit(ctx context.Context, userID string, size int64) error {
	if err := l.checkGlobal(ctx, size); err != nil {
		return err
	}

	if l.atomic != nil {
		ok, err := l.atomic.AddStorageIfWithinQuota(ctx, userID, size)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%w: user %s cannot commit %d bytes", errs.ErrQuotaExceeded, userID, size)
		}

		return nil
	}

	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	if user.StorageCurrent+size > user.StorageQuota {
		return fmt.Errorf("%w: user %s cannot commit %d bytes", errs.ErrQuotaExceeded, userID, size)
	}

	user.StorageCurrent += size

	return l.users.UpdateQuota(ctx, user)
}

// Release 归还 size 字节，用量不会低于 0.
func (l *Ledger) Release(ctx context.Context, userID string, size int64) error {
	if size <= 0 {
		return nil
	}

	if l.atomic != nil {
		return l.atomic.ReleaseStorage(ctx, userID, size)
	}

	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	user.StorageCurrent = max(user.StorageCurrent-size, 0)

	return l.users.UpdateQuota(ctx, user)
}
