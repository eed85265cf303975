// Package service 编排加密文件的完整生命周期：创建、删除、恢复、读取与大小统计.
//
// FileService 在构造时拿到全部依赖与存储配置的副本，运行期间不读取任何全局状态.
// 会产生事件的操作返回 (结果, 事件列表)，调用方在自己的工作单元成功后把事件交给
// queue.Dispatcher，操作失败时不会有任何事件.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/cache"
	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/dao"
	"github.com/yeisme/docvault/pkg/internal/encrypt"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/processing"
	"github.com/yeisme/docvault/pkg/internal/quota"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	"github.com/yeisme/docvault/pkg/internal/version"
	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/queue"
)

// Deps FileService 的依赖.
type Deps struct {
	Files   dao.FileDao
	Users   dao.UserDao
	Blobs   blob.Store
	Cipher  *encrypt.Cipher
	Ledger  *quota.Ledger
	Tracker processing.Tracker
	// Sizes 可选，缓存重新计算出的文件大小
	Sizes *cache.Cache
	// Events 可选，为 nil 时 Publish 丢弃事件
	Events *queue.Dispatcher
	Logger zerolog.Logger
}

// FileService 文件生命周期编排.
type FileService struct {
	files   dao.FileDao
	users   dao.UserDao
	blobs   blob.Store
	cipher  *encrypt.Cipher
	ledger  *quota.Ledger
	tracker processing.Tracker
	chain   *version.Chain
	sizes   *cache.Cache
	events  *queue.Dispatcher
	logger  zerolog.Logger

	softDelete     bool
	allowDuplicate bool
	sizeCacheTTL   time.Duration
}

// NewFileService 创建 FileService.
func NewFileService(cfg configs.StorageConfig, deps Deps) *FileService {
	return &FileService{
		files:          deps.Files,
		users:          deps.Users,
		blobs:          deps.Blobs,
		cipher:         deps.Cipher,
		ledger:         deps.Ledger,
		tracker:        deps.Tracker,
		chain:          version.New(deps.Files),
		sizes:          deps.Sizes,
		events:         deps.Events,
		logger:         deps.Logger,
		softDelete:     cfg.SoftDelete,
		allowDuplicate: cfg.AllowDuplicate,
		sizeCacheTTL:   cfg.SizeCacheTTL,
	}
}

// Tracker 返回注入的处理状态集合.
func (s *FileService) Tracker() processing.Tracker {
	return s.tracker
}

// Publish 投递一次操作产生的事件，应在调用方的工作单元成功后调用.
func (s *FileService) Publish(ctx context.Context, events []queue.Event) error {
	if s.events == nil || len(events) == 0 {
		return nil
	}

	if err := s.events.Dispatch(ctx, events); err != nil {
		return err
	}

	for _, ev := range events {
		metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	}

	return nil
}

// documentUpdated 文件属于文档时追加 DocumentUpdated 事件.
func documentUpdated(box *queue.Outbox, file *model.File) {
	if !file.HasDocument() {
		return
	}

	box.Add(queue.DocumentUpdated(queue.DocumentUpdatedPayload{
		DocumentID: *file.DocumentID,
		UserID:     file.UserID,
	}))
}

// CompleteProcessing 保存后处理提取出的文本并结束处理状态.
// content 为 nil 表示没有可保存的内容. 处理期间文件已被删除时丢弃内容，不算失败.
// 无论保存是否成功，处理状态都会结束.
func (s *FileService) CompleteProcessing(ctx context.Context, fileID string, content *string) error {
	var saveErr error

	if content != nil {
		saveErr = s.files.UpdateContent(ctx, fileID, *content)
		if errors.Is(saveErr, errs.ErrNotFound) {
			s.logger.Debug().Str("file_id", fileID).Msg("文件已删除，丢弃提取内容")

			saveErr = nil
		}
	}

	return errors.Join(saveErr, s.tracker.End(ctx, fileID))
}
