package service

import (
	"context"
	"fmt"
	"io"

	"github.com/yeisme/docvault/pkg/cache"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

type readCloser struct {
	io.Reader
	io.Closer
}

// Open 返回解密后的产物内容，调用方负责关闭.
func (s *FileService) Open(ctx context.Context, file *model.File, user *model.User, artifact blob.Artifact) (io.ReadCloser, error) {
	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		return nil, err
	}

	rc, err := s.blobs.Open(ctx, blob.Live, paths.Key(artifact))
	if err != nil {
		return nil, err
	}

	plain, err := s.cipher.DecryptReader(rc, user.PrivateKey)
	if err != nil {
		_ = rc.Close()

		return nil, err
	}

	return readCloser{Reader: plain, Closer: rc}, nil
}

// DecryptToTemp 把文件的主产物解密到 dir 下的临时文件，返回路径，调用方负责删除.
// 供上传时的明文副本已不存在时做后处理.
func (s *FileService) DecryptToTemp(ctx context.Context, file *model.File, dir string) (string, error) {
	user, err := s.users.GetByID(ctx, file.UserID)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", file.UserID, err)
	}

	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		return "", err
	}

	rc, err := s.blobs.Open(ctx, blob.Live, paths.Primary)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return s.cipher.DecryptToTemp(rc, user.PrivateKey, dir)
}

// StoreRendition 加密写入网页预览或缩略图.
func (s *FileService) StoreRendition(ctx context.Context, file *model.File, artifact blob.Artifact, r io.Reader) error {
	if artifact == blob.Primary {
		return fmt.Errorf("%w: primary content is written by CreateFile", errs.ErrIOFailure)
	}

	user, err := s.users.GetByID(ctx, file.UserID)
	if err != nil {
		return err
	}

	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		return err
	}

	encrypted, err := s.cipher.EncryptReader(r, user.PrivateKey)
	if err != nil {
		return err
	}

	if _, err := s.blobs.Create(ctx, blob.Live, paths.Key(artifact), encrypted); err != nil {
		return fmt.Errorf("store %s rendition of %s: %w", artifact, file.ID, err)
	}

	return nil
}

// GetFileSize 解密存储的主产物并统计明文字节数.
// 这是尽力而为的诊断路径：blob 不存在或无法解密时返回 errs.UnknownSize，不返回错误.
func (s *FileService) GetFileSize(ctx context.Context, file *model.File, user *model.User) int64 {
	measure := func() (int64, error) {
		return s.measure(ctx, file, user)
	}

	var (
		size int64
		err  error
	)

	if s.sizes != nil {
		size, err = cache.GetOrSet(ctx, s.sizes, file.ID, measure, s.sizeCacheTTL)
	} else {
		size, err = measure()
	}

	if err != nil {
		s.logger.Debug().Err(err).Str("file_id", file.ID).Msg("无法计算文件大小")

		return errs.UnknownSize
	}

	return size
}

func (s *FileService) measure(ctx context.Context, file *model.File, user *model.User) (int64, error) {
	rc, err := s.Open(ctx, file, user, blob.Primary)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return io.Copy(io.Discard, rc)
}

func (s *FileService) forgetSize(ctx context.Context, fileID string) {
	if s.sizes == nil {
		return
	}

	if err := s.sizes.Delete(ctx, fileID); err != nil {
		s.logger.Debug().Err(err).Str("file_id", fileID).Msg("清除大小缓存失败")
	}
}

// Get 读取属于 userID 的未删除文件及其所有者.
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*model.File, *model.User, error) {
	file, err := s.ownedActive(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, file.UserID)
	if err != nil {
		return nil, nil, err
	}

	return file, user, nil
}
