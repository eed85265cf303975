// Package ocr 从图像中提取文本.
//
// 流程：长边缩放到固定尺寸并转为灰度，估计倾斜角并反向旋转，写入临时 TIFF 文件，
// 最后调用外部 OCR 程序读取其标准输出.每一步都是无状态的变换，可以单独使用.
//
// 图像无法解码时返回 errs.ErrImageDecode；OCR 程序不存在或以非零状态退出时返回
// errs.ErrExtractionFailed.Pipeline 本身不重试，由调用方决定重试策略.
package ocr

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/metrics"
	"github.com/yeisme/docvault/pkg/tracing"
)

// Pipeline 内容提取流水线，构造后不可变，可并发使用.
type Pipeline struct {
	cfg     configs.OCRConfig
	runner  *Runner
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// Option 配置 Pipeline.
type Option func(*Pipeline)

// WithLogger 设置日志.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// newBreaker OCR 程序连续失败时熔断.
func newBreaker(cfg configs.OCRBreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ocr",
		MaxRequests: cfg.HalfOpen,
		Interval:    cfg.Interval,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRuns {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		IsSuccessful: func(err error) bool {
			// 图像本身的问题不计入熔断
			return err == nil || errors.Is(err, errs.ErrImageDecode)
		},
	})
}

// New 创建流水线.
func New(cfg configs.OCRConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		runner: NewRunner(cfg.Binary, cfg.MaxStderrBytes),
		logger: zerolog.Nop(),
	}
	if cfg.Breaker.Enabled {
		p.breaker = newBreaker(cfg.Breaker)
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Normalize 缩放、灰度化并纠正倾斜.
func Normalize(img image.Image, targetSize int) *image.Gray {
	resized := Resize(img, targetSize)

	return Rotate(resized, -SkewAngle(resized))
}

// ExtractReader 解码 r 中的图像并提取文本.
func (p *Pipeline) ExtractReader(ctx context.Context, r io.Reader, language string) (string, error) {
	img, err := Decode(r)
	if err != nil {
		return "", err
	}

	return p.Extract(ctx, img, language)
}

// ExtractFile 解码 path 指向的图像并提取文本.
func (p *Pipeline) ExtractFile(ctx context.Context, path, language string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err)
	}
	defer f.Close()

	return p.ExtractReader(ctx, f, language)
}

// Extract 对已解码的图像执行完整流程，language 为空时使用默认语言.
func (p *Pipeline) Extract(ctx context.Context, img image.Image, language string) (text string, err error) {
	if language == "" {
		language = p.cfg.DefaultLanguage
	}

	ctx, span := tracing.StartSpan(ctx, "ocr.Extract")
	start := time.Now()

	defer func() {
		metrics.OCRRuns.WithLabelValues(metrics.Result(err)).Inc()
		metrics.OCRDuration.Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	if p.breaker == nil {
		return p.extract(ctx, img, language)
	}

	out, err := p.breaker.Execute(func() (any, error) {
		return p.extract(ctx, img, language)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", errs.Wrap(errs.ErrExtractionFailed, err)
		}

		return "", err
	}

	return out.(string), nil
}

func (p *Pipeline) extract(ctx context.Context, img image.Image, language string) (string, error) {
	normalized := Normalize(img, p.cfg.TargetSize)

	scratch, err := os.CreateTemp(p.cfg.ScratchDir, "docvault-ocr-*.tiff")
	if err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	defer func() {
		if rmErr := os.Remove(scratch.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.Warn().Err(rmErr).Str("path", scratch.Name()).Msg("删除 OCR 临时文件失败")
		}
	}()

	if err := WriteTIFF(scratch, normalized); err != nil {
		_ = scratch.Close()

		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := scratch.Close(); err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err)
	}

	start := time.Now()

	text, err := p.runner.Run(ctx, scratch.Name(), language)
	if err != nil {
		return "", err
	}

	p.logger.Debug().
		Str("language", language).
		Int("chars", len(text)).
		Dur("took", time.Since(start)).
		Int("width", normalized.Bounds().Dx()).
		Int("height", normalized.Bounds().Dy()).
		Msg("OCR 完成")

	return text, nil
}
