package dao

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
)

type fileDao struct {
	db *gorm.DB
}

// NewFileDao 创建基于 GORM 的 FileDao.
func NewFileDao(db *gorm.DB) FileDao {
	return &fileDao{db: db}
}

func (d *fileDao) Create(ctx context.Context, file *model.File) error {
	if file.ID == "" {
		file.ID = NewID()
	}

	if err := d.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	return nil
}

func (d *fileDao) GetByID(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := d.db.WithContext(ctx).Unscoped().Where("id = ?", id).Take(&f).Error; err != nil {
		return nil, notFound(err)
	}

	return &f, nil
}

func (d *fileDao) GetActiveByID(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error; err != nil {
		return nil, notFound(err)
	}

	return &f, nil
}

func (d *fileDao) GetByDocumentID(ctx context.Context, userID, documentID string) ([]model.File, error) {
	var files []model.File

	err := d.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ? AND latest_version = ?", userID, documentID, true).
		Order("file_order ASC").Order("created_at ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}

	return files, nil
}

func (d *fileDao) GetVersions(ctx context.Context, versionID string) ([]model.File, error) {
	var files []model.File

	err := d.db.WithContext(ctx).Unscoped().
		Where("version_id = ?", versionID).
		Order("version ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	return files, nil
}

func (d *fileDao) FindByChecksum(ctx context.Context, userID, checksum string, size int64) (*model.File, error) {
	var f model.File

	err := d.db.WithContext(ctx).
		Where("user_id = ? AND checksum = ? AND size = ?", userID, checksum, size).
		Order("created_at ASC").
		Take(&f).Error
	if err != nil {
		return nil, notFound(err)
	}

	return &f, nil
}

func (d *fileDao) Supersede(ctx context.Context, id, versionID string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND latest_version = ?", id, true).
		Updates(map[string]any{"latest_version": false, "version_id": versionID})
	if res.Error != nil {
		return false, fmt.Errorf("supersede file %s: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}

func (d *fileDao) MarkLatest(ctx context.Context, id string) error {
	err := d.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("latest_version", true).Error
	if err != nil {
		return fmt.Errorf("mark %s latest: %w", id, err)
	}

	return nil
}

func (d *fileDao) Update(ctx context.Context, file *model.File) error {
	if err := d.db.WithContext(ctx).Save(file).Error; err != nil {
		return fmt.Errorf("update file %s: %w", file.ID, err)
	}

	return nil
}

func (d *fileDao) UpdateContent(ctx context.Context, id, content string) error {
	res := d.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("update content of %s: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: file %s", errs.ErrNotFound, id)
	}

	return nil
}

func (d *fileDao) SoftDelete(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).Where("id = ?", id).Delete(&model.File{})
	if res.Error != nil {
		return fmt.Errorf("delete file %s: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: file %s", errs.ErrNotFound, id)
	}

	return nil
}

func (d *fileDao) Restore(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).Unscoped().Model(&model.File{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	if res.Error != nil {
		return fmt.Errorf("restore file %s: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: deleted file %s", errs.ErrNotFound, id)
	}

	return nil
}

func (d *fileDao) HardDelete(ctx context.Context, id string) error {
	if err := d.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&model.File{}).Error; err != nil {
		return fmt.Errorf("purge file %s: %w", id, err)
	}

	return nil
}

func (d *fileDao) Transaction(ctx context.Context, fn func(files FileDao) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&fileDao{db: tx})
	})
}
