package dao

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/internal/model"
)

type userDao struct {
	db *gorm.DB
}

// UserStore 同时提供 UserDao 与原子配额更新.
type UserStore interface {
	UserDao
	AtomicQuotaUpdater
}

// NewUserDao 创建基于 GORM 的 UserDao，支持条件更新.
func NewUserDao(db *gorm.DB) UserStore {
	return &userDao{db: db}
}

func (d *userDao) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}

	return &u, nil
}

func (d *userDao) Create(ctx context.Context, user *model.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (d *userDao) UpdateQuota(ctx context.Context, user *model.User) error {
	err := d.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("storage_current", user.StorageCurrent).Error
	if err != nil {
		return fmt.Errorf("update quota of %s: %w", user.ID, err)
	}

	return nil
}

func (d *userDao) GetGlobalStorageCurrent(ctx context.Context) (int64, error) {
	var total int64

	err := d.db.WithContext(ctx).Model(&model.User{}).
		Select("COALESCE(SUM(storage_current), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum storage: %w", err)
	}

	return total, nil
}

// AddStorageIfWithinQuota 单条条件 UPDATE，并发上传之间不会超出配额.
func (d *userDao) AddStorageIfWithinQuota(ctx context.Context, userID string, delta int64) (bool, error) {
	res := d.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND storage_current + ? <= storage_quota", userID, delta).
		UpdateColumn("storage_current", gorm.Expr("storage_current + ?", delta))
	if res.Error != nil {
		return false, fmt.Errorf("reserve storage for %s: %w", userID, res.Error)
	}

	return res.RowsAffected == 1, nil
}

func (d *userDao) ReleaseStorage(ctx context.Context, userID string, delta int64) error {
	err := d.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("storage_current",
			gorm.Expr("CASE WHEN storage_current > ? THEN storage_current - ? ELSE 0 END", delta, delta)).Error
	if err != nil {
		return fmt.Errorf("release storage for %s: %w", userID, err)
	}

	return nil
}
