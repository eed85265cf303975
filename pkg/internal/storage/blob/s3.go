package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/internal/errs"
	s3c "github.com/yeisme/docvault/pkg/internal/storage/s3"
)

// S3 基于 S3 兼容对象存储的 Store 实现，两个区域对应同一 bucket 下的两个前缀.
// 对象存储没有目录，也没有原子的“不覆盖”写入，存在性检查与写入之间存在竞争窗口.
type S3 struct {
	client   *s3c.Client
	prefixes map[Area]string
	logger   zerolog.Logger
}

// NewS3 创建 S3 存储.
func NewS3(client *s3c.Client, livePrefix, deletedPrefix string, logger zerolog.Logger) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is nil")
	}

	if livePrefix == deletedPrefix {
		return nil, fmt.Errorf("live prefix and deleted prefix must differ")
	}

	return &S3{
		client:   client,
		prefixes: map[Area]string{Live: livePrefix, Deleted: deletedPrefix},
		logger:   logger.With().Str("store", "s3").Str("bucket", client.Bucket()).Logger(),
	}, nil
}

// Name 后端名称.
func (s *S3) Name() string { return "s3" }

func (s *S3) object(area Area, key string) (string, error) {
	prefix, ok := s.prefixes[area]
	if !ok {
		return "", fmt.Errorf("%w: unknown area %s", errs.ErrIOFailure, area)
	}

	if key == "" {
		return "", fmt.Errorf("%w: empty key", errs.ErrIOFailure)
	}

	return path.Join(prefix, key), nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code

	return code == "NoSuchKey" || code == "NotFound"
}

// Exists 判断对象是否存在.
func (s *S3) Exists(ctx context.Context, area Area, key string) (bool, error) {
	obj, err := s.object(area, key)
	if err != nil {
		return false, err
	}

	if _, err := s.client.StatObject(ctx, s.client.Bucket(), obj, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}

		return false, errs.Wrap(errs.ErrIOFailure, err)
	}

	return true, nil
}

// Create 上传对象，长度未知时使用分片上传.
func (s *S3) Create(ctx context.Context, area Area, key string, r io.Reader) (int64, error) {
	obj, err := s.object(area, key)
	if err != nil {
		return 0, err
	}

	exists, err := s.Exists(ctx, area, key)
	if err != nil {
		return 0, err
	}

	if exists {
		return 0, fmt.Errorf("%w: %s", errs.ErrDestinationExists, obj)
	}

	info, err := s.client.PutObject(ctx, s.client.Bucket(), obj, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, errs.Wrap(errs.ErrIOFailure, err)
	}

	return info.Size, nil
}

// Open 打开对象读取.
func (s *S3) Open(ctx context.Context, area Area, key string) (io.ReadCloser, error) {
	obj, err := s.object(area, key)
	if err != nil {
		return nil, err
	}

	if _, err := s.client.StatObject(ctx, s.client.Bucket(), obj, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, errs.Wrap(errs.ErrNotFound, err)
		}

		return nil, errs.Wrap(errs.ErrIOFailure, err)
	}

	o, err := s.client.GetObject(ctx, s.client.Bucket(), obj, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.ErrIOFailure, err)
	}

	return o, nil
}

// Remove 删除对象.
func (s *S3) Remove(ctx context.Context, area Area, key string) error {
	obj, err := s.object(area, key)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.client.Bucket(), obj, minio.RemoveObjectOptions{}); err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}

	return nil
}

// RemoveDir 对象存储没有目录，无需操作.
func (s *S3) RemoveDir(context.Context, Area, string) error {
	return nil
}

// Move 服务端拷贝后删除源对象.
func (s *S3) Move(ctx context.Context, from, to Area, key string) error {
	src, err := s.object(from, key)
	if err != nil {
		return err
	}

	dst, err := s.object(to, key)
	if err != nil {
		return err
	}

	exists, err := s.Exists(ctx, to, key)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%w: %s", errs.ErrDestinationExists, dst)
	}

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.client.Bucket(), Object: dst},
		minio.CopySrcOptions{Bucket: s.client.Bucket(), Object: src},
	)
	if err != nil {
		if isNoSuchKey(err) {
			return errs.Wrap(errs.ErrNotFound, err)
		}

		return errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := s.client.RemoveObject(ctx, s.client.Bucket(), src, minio.RemoveObjectOptions{}); err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}

	return nil
}

// Purge 删除前缀下最后修改时间早于 before 的对象.
func (s *S3) Purge(ctx context.Context, area Area, before time.Time) (int, error) {
	prefix, ok := s.prefixes[area]
	if !ok {
		return 0, fmt.Errorf("%w: unknown area %s", errs.ErrIOFailure, area)
	}

	var removed int

	for obj := range s.client.ListObjects(ctx, s.client.Bucket(), minio.ListObjectsOptions{
		Prefix:    prefix + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return removed, errs.Wrap(errs.ErrIOFailure, obj.Err)
		}

		if !obj.LastModified.Before(before) {
			continue
		}

		if err := s.client.RemoveObject(ctx, s.client.Bucket(), obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn().Err(err).Str("key", obj.Key).Msg("purge object failed")

			continue
		}

		removed++
	}

	return removed, nil
}
