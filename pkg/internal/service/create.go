package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"

	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	"github.com/yeisme/docvault/pkg/internal/version"
	nlog "github.com/yeisme/docvault/pkg/log"
	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/queue"
	"github.com/yeisme/docvault/pkg/tracing"
)

// mimeSniffLen 用于识别 MIME 类型的头部字节数.
const mimeSniffLen = 3072

// defaultMimeType 无法从内容与文件名判断时使用的类型.
const defaultMimeType = "application/octet-stream"

// CreateFileRequest 创建文件的参数.
type CreateFileRequest struct {
	// Name 显示名称，超长时被截断
	Name string
	// PreviousFileID 非空时新文件作为其下一个版本
	PreviousFileID string
	// Source 未加密的内容
	Source io.Reader
	// SourcePath 未加密内容所在的临时文件，随 FileCreated 事件交给后处理
	SourcePath string
	// Size 声明的字节数，用于写入前的配额检查
	Size       int64
	Language   *string
	UserID     string
	DocumentID *string
}

// CreateFile 创建文件.
//
// 顺序：识别 MIME 类型，检查配额，计算版本链并写入元数据，加密写入主产物，提交配额，
// 标记处理中，最后返回 FileCreated 以及（属于文档时）DocumentUpdated 事件.
// 元数据写入之后的任何失败都会删除已写入的 blob 与元数据，配额不会被提交.
func (s *FileService) CreateFile(ctx context.Context, req CreateFileRequest) (file *model.File, events []queue.Event, err error) {
	ctx, span := tracing.StartSpan(ctx, "FileService.CreateFile")
	defer func() {
		metrics.FileOperations.WithLabelValues("create", metrics.Result(err)).Inc()
		tracing.EndSpan(span, err)
	}()

	if req.Size < 0 {
		return nil, nil, fmt.Errorf("invalid size %d", req.Size)
	}

	source, mimeType, err := detectMime(req.Source, req.Name)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user %s: %w", req.UserID, err)
	}

	hasher := xxhash.New()

	encrypted, err := s.cipher.EncryptReader(io.TeeReader(source, hasher), user.PrivateKey)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ledger.Check(ctx, req.UserID, req.Size); err != nil {
		s.countQuotaRejection(err)

		return nil, nil, err
	}

	file, err = s.chain.Create(ctx, version.Metadata{
		Name:       req.Name,
		MimeType:   mimeType,
		Size:       req.Size,
		UserID:     req.UserID,
		DocumentID: req.DocumentID,
		Language:   req.Language,
	}, req.PreviousFileID)
	if err != nil {
		return nil, nil, err
	}

	logger := nlog.WithTrace(ctx, s.logger.With().Str("file_id", file.ID).Str("user_id", file.UserID).Logger())

	paths, err := blob.Resolve(blob.Ref{UserID: file.UserID, FileID: file.ID})
	if err != nil {
		s.rollback(ctx, file, req.PreviousFileID, blob.Paths{}, false)

		return nil, nil, err
	}

	written, err := s.blobs.Create(ctx, blob.Live, paths.Primary, encrypted)
	if err != nil {
		// 已存在的目标不属于本次写入，不能删除
		s.rollback(ctx, file, req.PreviousFileID, paths, !errors.Is(err, errs.ErrDestinationExists))

		return nil, nil, fmt.Errorf("store %s: %w", file.ID, err)
	}

	if written != req.Size {
		logger.Warn().Int64("declared", req.Size).Int64("written", written).Msg("文件实际大小与声明不一致")
	}

	file.Size = written
	file.Checksum = strconv.FormatUint(hasher.Sum64(), 16)

	if err := s.checkDuplicate(ctx, file); err != nil {
		s.rollback(ctx, file, req.PreviousFileID, paths, true)

		return nil, nil, err
	}

	if err := s.files.Update(ctx, file); err != nil {
		s.rollback(ctx, file, req.PreviousFileID, paths, true)

		return nil, nil, err
	}

	if err := s.ledger.Commit(ctx, file.UserID, written); err != nil {
		s.countQuotaRejection(err)
		s.rollback(ctx, file, req.PreviousFileID, paths, true)

		return nil, nil, err
	}

	metrics.StoredBytes.Add(float64(written))

	if err := s.tracker.Begin(ctx, file.ID); err != nil {
		logger.Warn().Err(err).Msg("标记处理状态失败")
	}

	var box queue.Outbox

	box.Add(queue.FileCreated(queue.FileCreatedPayload{
		FileID:     file.ID,
		UserID:     file.UserID,
		Language:   file.Language,
		SourcePath: req.SourcePath,
		MimeType:   file.MimeType,
	}))

	documentUpdated(&box, file)

	logger.Info().
		Str("mime", file.MimeType).
		Int64("size", file.Size).
		Int("version", file.Version).
		Msg("文件已创建")

	return file, box.Events(), nil
}

func (s *FileService) checkDuplicate(ctx context.Context, file *model.File) error {
	if s.allowDuplicate {
		return nil
	}

	existing, err := s.files.FindByChecksum(ctx, file.UserID, file.Checksum, file.Size)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}

		return err
	}

	if existing.ID == file.ID {
		return nil
	}

	return fmt.Errorf("%w: same content as %s", errs.ErrDuplicate, existing.ID)
}

// rollback 撤销已写入的元数据与 blob，恢复前一版本的最新标记.
func (s *FileService) rollback(ctx context.Context, file *model.File, previousFileID string, paths blob.Paths, removeBlob bool) {
	// 调用方的 ctx 可能已取消，回滚必须完成
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With().Str("file_id", file.ID).Logger()

	if removeBlob {
		if err := s.blobs.Remove(ctx, blob.Live, paths.Primary); err != nil && !errors.Is(err, errs.ErrNotFound) {
			logger.Error().Err(err).Str("key", paths.Primary).Msg("回滚时删除 blob 失败")
		}

		if err := s.blobs.RemoveDir(ctx, blob.Live, paths.Dir); err != nil {
			logger.Warn().Err(err).Str("dir", paths.Dir).Msg("回滚时删除目录失败")
		}
	}

	if err := s.files.HardDelete(ctx, file.ID); err != nil {
		logger.Error().Err(err).Msg("回滚时删除元数据失败")
	}

	if previousFileID != "" {
		if err := s.files.MarkLatest(ctx, previousFileID); err != nil {
			logger.Error().Err(err).Str("previous_id", previousFileID).Msg("回滚时恢复前一版本失败")
		}
	}
}

func (s *FileService) countQuotaRejection(err error) {
	switch {
	case errors.Is(err, errs.ErrGlobalQuotaExceeded):
		metrics.QuotaRejections.WithLabelValues("global").Inc()
	case errors.Is(err, errs.ErrQuotaExceeded):
		metrics.QuotaRejections.WithLabelValues("user").Inc()
	}
}

// detectMime 读取头部识别 MIME 类型，返回可以从头读取完整内容的 reader.
// 内容无法识别时按扩展名判断.
func detectMime(r io.Reader, name string) (io.Reader, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("%w: no content", errs.ErrMimeDetection)
	}

	head := make([]byte, mimeSniffLen)

	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", errs.Wrap(errs.ErrMimeDetection, err)
	}

	head = head[:n]
	detected := mimetype.Detect(head)
	mimeType := detected.String()

	if n == 0 || detected.Is(defaultMimeType) {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			mimeType = byExt
		}
	}

	return io.MultiReader(bytes.NewReader(head), r), mimeType, nil
}
