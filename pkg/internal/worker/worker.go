// Package worker 消费文件事件，执行上传后的异步处理.
//
// FileCreated：图像文件先经过 OCR 提取文本，再生成网页预览与缩略图，最后保存文本并结束处理状态.
// 上传时的明文副本不可读时，解密已存储的主产物到临时文件再处理.
// FileDeleted：删除文件的全部存储产物.
// 其他事件类型被忽略.
package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	"github.com/yeisme/docvault/pkg/internal/storage/mq"
	"github.com/yeisme/docvault/pkg/queue"
)

// HandlerName 注册到 Router 的 handler 名称.
const HandlerName = "docvault-file-events"

// Extractor 从图像文件中提取文本.
type Extractor interface {
	ExtractFile(ctx context.Context, path, language string) (string, error)
}

// Files 工作者需要的文件服务能力.
type Files interface {
	Delete(ctx context.Context, file *model.File) error
	StoreRendition(ctx context.Context, file *model.File, artifact blob.Artifact, r io.Reader) error
	CompleteProcessing(ctx context.Context, fileID string, content *string) error
	DecryptToTemp(ctx context.Context, file *model.File, dir string) (string, error)
}

// Option 配置 Worker.
type Option func(*Worker)

// WithLogger 设置日志.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithRateLimit 限制每秒启动的 OCR 任务数，配置关闭时不限制.
func WithRateLimit(cfg configs.OCRRateConfig) Option {
	return func(w *Worker) {
		if cfg.Enabled && cfg.RunsPerSecond > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(cfg.RunsPerSecond), max(cfg.Burst, 1))
		}
	}
}

// WithoutRenditions 不生成网页预览与缩略图.
func WithoutRenditions() Option {
	return func(w *Worker) { w.renditions = false }
}

// Worker 文件事件消费者.
type Worker struct {
	files      Files
	extractor  Extractor
	limiter    *rate.Limiter
	renditions bool
	logger     zerolog.Logger
}

// New 创建 Worker. extractor 为 nil 时跳过 OCR.
func New(files Files, extractor Extractor, opts ...Option) *Worker {
	w := &Worker{
		files:      files,
		extractor:  extractor,
		renditions: true,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Register 把 Handle 挂到 client 的 Router 上.
func (w *Worker) Register(client *mq.Client, topic string) error {
	return client.AddConsumer(HandlerName, topic, w.Handle)
}

// Handle 处理一条事件消息. 返回错误时消息会被重试.
// 无法解析的消息记录日志后确认，避免反复投递.
func (w *Worker) Handle(msg *message.Message) error {
	ctx := msg.Context()

	header, err := queue.ParseHeader(msg)
	if err != nil {
		w.logger.Error().Err(err).Str("uuid", msg.UUID).Msg("无法解析事件头部，丢弃")

		return nil
	}

	logger := w.logger.With().
		Str("type", string(header.Type)).
		Str("batch_id", header.BatchID).
		Int("seq", header.Seq).
		Logger()

	switch header.Type {
	case queue.EventFileCreated:
		m, err := queue.ParseWatermillMessage[queue.FileCreatedPayload](msg)
		if err != nil {
			logger.Error().Err(err).Msg("无法解析 FileCreated 负载，丢弃")

			return nil
		}

		return w.FileCreated(ctx, m.Payload)
	case queue.EventFileDeleted:
		m, err := queue.ParseWatermillMessage[queue.FileDeletedPayload](msg)
		if err != nil {
			logger.Error().Err(err).Msg("无法解析 FileDeleted 负载，丢弃")

			return nil
		}

		return w.FileDeleted(ctx, m.Payload)
	default:
		logger.Debug().Msg("忽略事件")

		return nil
	}
}

// FileCreated 对新文件做后处理并结束其处理状态.
// OCR 与缩略图失败只记录日志，文件仍然结束处理状态.
func (w *Worker) FileCreated(ctx context.Context, p queue.FileCreatedPayload) error {
	logger := w.logger.With().Str("file_id", p.FileID).Str("mime", p.MimeType).Logger()

	if !isImage(p.MimeType) {
		return w.files.CompleteProcessing(ctx, p.FileID, nil)
	}

	file := &model.File{ID: p.FileID, UserID: p.UserID}

	source, cleanup, err := w.plainSource(ctx, file, p.SourcePath)
	if err != nil {
		logger.Warn().Err(err).Str("source", p.SourcePath).Msg("没有可读的明文，跳过后处理")

		return w.files.CompleteProcessing(ctx, p.FileID, nil)
	}
	defer cleanup()

	var content *string

	if w.extractor != nil {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		text, err := w.extractor.ExtractFile(ctx, source, language(p.Language))
		if err != nil {
			logger.Warn().Err(err).Msg("OCR 失败")
		} else {
			content = &text
		}
	}

	if w.renditions {
		if err := w.storeRenditions(ctx, file, source); err != nil {
			logger.Warn().Err(err).Msg("生成预览失败")
		}
	}

	return w.files.CompleteProcessing(ctx, p.FileID, content)
}

// plainSource 返回可读的明文路径与清理函数. path 不可读时解密已存储的主产物.
func (w *Worker) plainSource(ctx context.Context, file *model.File, path string) (string, func(), error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, func() {}, nil
		}
	}

	tmp, err := w.files.DecryptToTemp(ctx, file, "")
	if err != nil {
		return "", nil, err
	}

	return tmp, func() { _ = os.Remove(tmp) }, nil
}

// FileDeleted 删除文件的存储产物.
func (w *Worker) FileDeleted(ctx context.Context, p queue.FileDeletedPayload) error {
	err := w.files.Delete(ctx, &model.File{ID: p.FileID, UserID: p.UserID, Name: p.FileName, Size: p.FileSize})
	if err != nil {
		w.logger.Error().Err(err).Str("file_id", p.FileID).Msg("删除存储产物失败")

		return err
	}

	return nil
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func language(l *string) string {
	if l == nil {
		return ""
	}

	return *l
}

// ignoreExisting 重试时预览可能已经写入.
func ignoreExisting(err error) error {
	if errors.Is(err, errs.ErrDestinationExists) {
		return nil
	}

	return err
}
