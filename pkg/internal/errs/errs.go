// Package errs 定义文件存储核心的错误分类.
//
// 所有错误均为哨兵错误，调用方使用 errors.Is 判断类别；底层原因通过 Wrap 一并保留.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded 用户或全局存储配额不足.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrGlobalQuotaExceeded 全局配额不足，同时匹配 ErrQuotaExceeded.
	ErrGlobalQuotaExceeded = fmt.Errorf("%w: global", ErrQuotaExceeded)
	// ErrVersionMismatch 版本链完整性被破坏（前一版本不存在或不属于同一文档）.
	ErrVersionMismatch = errors.New("previous version mismatch")
	// ErrMimeDetection 无法识别 MIME 类型.
	ErrMimeDetection = errors.New("mime detection failed")
	// ErrInvalidKey 开启加密时私钥为空.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrCipherInit 密码器初始化失败.
	ErrCipherInit = errors.New("cipher init failed")
	// ErrImageDecode 图像无法解码.
	ErrImageDecode = errors.New("image decode failed")
	// ErrExtractionFailed OCR 子进程失败或不存在.
	ErrExtractionFailed = errors.New("content extraction failed")
	// ErrIOFailure 通用存储读写错误.
	ErrIOFailure = errors.New("storage: I/O failure")
	// ErrDestinationExists 移动目标已存在，同时匹配 ErrIOFailure.
	ErrDestinationExists = fmt.Errorf("%w: destination exists", ErrIOFailure)
	// ErrNotFound 元数据或 blob 不存在.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate 用户已存在内容相同的文件且策略不允许重复.
	ErrDuplicate = errors.New("duplicate file")
)

// UnknownSize 无法计算文件大小时返回的哨兵值（不是错误）.
const UnknownSize int64 = -1

// Wrap 将哨兵错误与底层原因组合，err 为 nil 时返回 nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", kind, err)
}
