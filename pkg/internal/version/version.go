// Package version 维护文档内文件的排列顺序与版本链.
//
// 同一逻辑文件的所有版本共享一个版本组 ID（首次产生新版本时才分配），版本号从 0 开始递增，
// 组内只有一个文件的 LatestVersion 为 true.
package version

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
)

const ellipsis = "..."

// Metadata 新文件的描述信息.
type Metadata struct {
	Name       string
	MimeType   string
	Size       int64
	UserID     string
	DocumentID *string
	Language   *string
	Checksum   string
}

// Chain 版本链管理器.
type Chain struct {
	files dao.FileDao
}

// New 创建版本链管理器.
func New(files dao.FileDao) *Chain {
	return &Chain{files: files}
}

// Create 在一个事务中完成版本链计算与写入.
// previousFileID 为空时创建初始版本，否则在其之后追加新版本.
func (c *Chain) Create(ctx context.Context, meta Metadata, previousFileID string) (*model.File, error) {
	var file *model.File

	err := c.files.Transaction(ctx, func(tx dao.FileDao) error {
		var err error
		if previousFileID == "" {
			file, err = CreateInitial(ctx, tx, meta)
		} else {
			file, err = CreateNewVersion(ctx, tx, previousFileID, meta)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	return file, nil
}

// CreateInitial 写入版本 0，Order 为文档中已有文件的数量.
func CreateInitial(ctx context.Context, files dao.FileDao, meta Metadata) (*model.File, error) {
	file := newFile(meta)
	file.LatestVersion = true

	if file.HasDocument() {
		existing, err := files.GetByDocumentID(ctx, meta.UserID, *meta.DocumentID)
		if err != nil {
			return nil, err
		}

		file.Order = len(existing)
	}

	if err := files.Create(ctx, file); err != nil {
		return nil, err
	}

	return file, nil
}

// CreateNewVersion 在 previousFileID 之后写入新版本.
// 前一版本必须存在、属于同一用户与文档且仍是最新版本，否则返回 ErrVersionMismatch.
// 前一版本先被标记为旧版本，新文件随后写入.
func CreateNewVersion(ctx context.Context, files dao.FileDao, previousFileID string, meta Metadata) (*model.File, error) {
	prev, err := files.GetActiveByID(ctx, previousFileID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: previous file %s does not exist", errs.ErrVersionMismatch, previousFileID)
		}

		return nil, err
	}

	if prev.UserID != meta.UserID || !prev.SameDocument(meta.DocumentID) {
		return nil, fmt.Errorf("%w: previous file %s belongs to another document", errs.ErrVersionMismatch, previousFileID)
	}

	if !prev.LatestVersion {
		return nil, fmt.Errorf("%w: previous file %s is not the latest version", errs.ErrVersionMismatch, previousFileID)
	}

	groupID := uuid.NewString()
	if prev.VersionID != nil && *prev.VersionID != "" {
		groupID = *prev.VersionID
	}

	ok, err := files.Supersede(ctx, prev.ID, groupID)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: previous file %s was superseded concurrently", errs.ErrVersionMismatch, previousFileID)
	}

	file := newFile(meta)
	file.Order = prev.Order
	file.Version = prev.Version + 1
	file.VersionID = &groupID
	file.LatestVersion = true

	if err := files.Create(ctx, file); err != nil {
		return nil, err
	}

	return file, nil
}

func newFile(meta Metadata) *model.File {
	return &model.File{
		Name:       TruncateName(meta.Name),
		MimeType:   meta.MimeType,
		Size:       meta.Size,
		UserID:     meta.UserID,
		DocumentID: meta.DocumentID,
		Language:   meta.Language,
		Checksum:   meta.Checksum,
	}
}

// TruncateName 将超过 model.MaxNameLength 个字符的文件名截断并以 "..." 结尾.
func TruncateName(name string) string {
	if utf8.RuneCountInString(name) <= model.MaxNameLength {
		return name
	}

	runes := []rune(name)

	return string(runes[:model.MaxNameLength-len(ellipsis)]) + ellipsis
}
