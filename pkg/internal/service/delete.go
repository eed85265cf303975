package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	nlog "github.com/yeisme/docvault/pkg/log"
	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/queue"
	"github.com/yeisme/docvault/pkg/tracing"
)

// Delete 删除文件的全部存储产物：软删除策略下移动到删除区，否则永久删除，最后清理空目录.
// 网页预览与缩略图可能不存在，处理它们时的错误只记录日志；主产物存在却无法处理时返回错误.
// 元数据行不在这里删除.
func (s *FileService) Delete(ctx context.Context, file *model.File) (err error) {
	ctx, span := tracing.StartSpan(ctx, "FileService.Delete")
	defer func() {
		metrics.FileOperations.WithLabelValues("delete", metrics.Result(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		return err
	}

	logger := nlog.WithTrace(ctx, s.logger.With().Str("file_id", file.ID).Bool("soft", s.softDelete).Logger())

	for _, artifact := range blob.Artifacts {
		key := paths.Key(artifact)

		if err := s.discard(ctx, key); err != nil {
			if artifact == blob.Primary {
				return fmt.Errorf("delete %s: %w", key, err)
			}

			logger.Warn().Err(err).Str("key", key).Msg("删除派生产物失败")
		}
	}

	if err := s.blobs.RemoveDir(ctx, blob.Live, paths.Dir); err != nil {
		logger.Warn().Err(err).Str("dir", paths.Dir).Msg("删除目录失败")
	}

	s.forgetSize(ctx, file.ID)

	logger.Info().Msg("文件存储已删除")

	return nil
}

// discard 按删除策略处理一个存在的产物，不存在时什么都不做.
func (s *FileService) discard(ctx context.Context, key string) error {
	ok, err := s.blobs.Exists(ctx, blob.Live, key)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	if s.softDelete {
		return s.blobs.Move(ctx, blob.Live, blob.Deleted, key)
	}

	err = s.blobs.Remove(ctx, blob.Live, key)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}

	return err
}

// Remove 用户删除文件：软删除元数据并归还配额.
// 存储产物由 FileDeleted 事件的消费者调用 Delete 清理.
func (s *FileService) Remove(ctx context.Context, userID, fileID string) (file *model.File, events []queue.Event, err error) {
	ctx, span := tracing.StartSpan(ctx, "FileService.Remove")
	defer func() {
		metrics.FileOperations.WithLabelValues("remove", metrics.Result(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	file, err = s.ownedActive(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.files.SoftDelete(ctx, file.ID); err != nil {
		return nil, nil, err
	}

	if err := s.ledger.Release(ctx, file.UserID, file.Size); err != nil {
		s.logger.Error().Err(err).Str("file_id", file.ID).Msg("归还配额失败")
	}

	var box queue.Outbox

	box.Add(queue.FileDeleted(queue.FileDeletedPayload{
		FileID:     file.ID,
		UserID:     file.UserID,
		DocumentID: file.DocumentID,
		FileName:   file.Name,
		FileSize:   file.Size,
	}))

	documentUpdated(&box, file)

	return file, box.Events(), nil
}

// Restore 恢复被 Remove 删除的文件：重新占用配额，把产物从删除区移回，最后恢复元数据.
// 硬删除策略下产物已不存在，返回 ErrNotFound.
func (s *FileService) Restore(ctx context.Context, userID, fileID string) (file *model.File, events []queue.Event, err error) {
	ctx, span := tracing.StartSpan(ctx, "FileService.Restore")
	defer func() {
		metrics.FileOperations.WithLabelValues("restore", metrics.Result(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	file, err = s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	if file.UserID != userID || !file.DeletedAt.Valid {
		return nil, nil, fmt.Errorf("%w: deleted file %s", errs.ErrNotFound, fileID)
	}

	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		return nil, nil, err
	}

	ok, err := s.blobs.Exists(ctx, blob.Deleted, paths.Primary)
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		return nil, nil, fmt.Errorf("%w: no stored content for %s", errs.ErrNotFound, fileID)
	}

	if err := s.ledger.Check(ctx, file.UserID, file.Size); err != nil {
		s.countQuotaRejection(err)

		return nil, nil, err
	}

	if err := s.ledger.Commit(ctx, file.UserID, file.Size); err != nil {
		s.countQuotaRejection(err)

		return nil, nil, err
	}

	if err := s.blobs.Move(ctx, blob.Deleted, blob.Live, paths.Primary); err != nil {
		_ = s.ledger.Release(context.WithoutCancel(ctx), file.UserID, file.Size)

		return nil, nil, err
	}

	for _, artifact := range []blob.Artifact{blob.Web, blob.Thumb} {
		key := paths.Key(artifact)
		if err := s.blobs.Move(ctx, blob.Deleted, blob.Live, key); err != nil && !errors.Is(err, errs.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("恢复派生产物失败")
		}
	}

	if err := s.blobs.RemoveDir(ctx, blob.Deleted, paths.Dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", paths.Dir).Msg("删除目录失败")
	}

	if err := s.files.Restore(ctx, file.ID); err != nil {
		return nil, nil, err
	}

	file.DeletedAt.Valid = false

	var box queue.Outbox

	documentUpdated(&box, file)

	return file, box.Events(), nil
}

// ownedActive 读取属于 userID 的未删除文件，其他用户的文件视为不存在.
func (s *FileService) ownedActive(ctx context.Context, userID, fileID string) (*model.File, error) {
	file, err := s.files.GetActiveByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if file.UserID != userID {
		return nil, fmt.Errorf("%w: file %s", errs.ErrNotFound, fileID)
	}

	return file, nil
}
