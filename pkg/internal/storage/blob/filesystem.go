package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/internal/errs"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// FileSystem 基于本地目录的 Store 实现，正常区与软删除区是两个平行的根目录.
type FileSystem struct {
	roots  map[Area]string
	logger zerolog.Logger
}

// NewFileSystem 创建文件系统存储，root 与 deletedRoot 被解析为绝对路径.
func NewFileSystem(root, deletedRoot string, logger zerolog.Logger) (*FileSystem, error) {
	if root == "" || deletedRoot == "" {
		return nil, fmt.Errorf("storage root and deleted root are required")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	absDeleted, err := filepath.Abs(deletedRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve deleted root: %w", err)
	}

	if absRoot == absDeleted {
		return nil, fmt.Errorf("storage root and deleted root must differ")
	}

	for _, dir := range []string{absRoot, absDeleted} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, errs.Wrap(errs.ErrIOFailure, err)
		}
	}

	return &FileSystem{
		roots:  map[Area]string{Live: absRoot, Deleted: absDeleted},
		logger: logger.With().Str("store", "fs").Logger(),
	}, nil
}

// Name 后端名称.
func (f *FileSystem) Name() string { return "fs" }

// Path 返回 key 在区域内的绝对路径.
func (f *FileSystem) Path(area Area, key string) (string, error) {
	root, ok := f.roots[area]
	if !ok {
		return "", fmt.Errorf("%w: unknown area %s", errs.ErrIOFailure, area)
	}

	if key == "" {
		return "", fmt.Errorf("%w: empty key", errs.ErrIOFailure)
	}

	cleaned := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: key escapes root: %q", errs.ErrIOFailure, key)
	}

	return filepath.Join(root, cleaned), nil
}

// Exists 判断文件是否存在.
func (f *FileSystem) Exists(_ context.Context, area Area, key string) (bool, error) {
	p, err := f.Path(area, key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, errs.Wrap(errs.ErrIOFailure, err)
	}

	return true, nil
}

// Create 先写入同目录的临时文件，再以不覆盖的方式放到最终位置.
// 写入失败时不留下任何部分文件.
func (f *FileSystem) Create(_ context.Context, area Area, key string, r io.Reader) (int64, error) {
	p, err := f.Path(area, key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return 0, errs.Wrap(errs.ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return 0, errs.Wrap(errs.ErrIOFailure, err)
	}

	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}

	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		_ = os.Remove(tmpPath)

		return 0, errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)

		return 0, errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := placeNoReplace(tmpPath, p); err != nil {
		_ = os.Remove(tmpPath)

		return 0, err
	}

	return n, nil
}

// Open 打开文件读取.
func (f *FileSystem) Open(_ context.Context, area Area, key string) (io.ReadCloser, error) {
	p, err := f.Path(area, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrNotFound, err)
		}

		return nil, errs.Wrap(errs.ErrIOFailure, err)
	}

	return file, nil
}

// Remove 删除文件.
func (f *FileSystem) Remove(_ context.Context, area Area, key string) error {
	p, err := f.Path(area, key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.ErrNotFound, err)
		}

		return errs.Wrap(errs.ErrIOFailure, err)
	}

	return nil
}

// RemoveDir 删除空目录，并向上清理空的父目录直到区域根目录.
func (f *FileSystem) RemoveDir(_ context.Context, area Area, dir string) error {
	p, err := f.Path(area, dir)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil
		case isNotEmpty(err):
			f.logger.Warn().Str("dir", p).Msg("storage directory not empty, kept")

			return nil
		default:
			return errs.Wrap(errs.ErrIOFailure, err)
		}
	}

	f.pruneEmptyParents(area, filepath.Dir(p))

	return nil
}

// Move 在区域间移动文件，目标存在时返回 errs.ErrDestinationExists.
// 移动后的修改时间被设置为当前时间，用于软删除区的过期清理.
func (f *FileSystem) Move(_ context.Context, from, to Area, key string) error {
	src, err := f.Path(from, key)
	if err != nil {
		return err
	}

	dst, err := f.Path(to, key)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.ErrNotFound, err)
		}

		return errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := placeNoReplace(src, dst); err != nil {
		return err
	}

	now := time.Now()
	if err := os.Chtimes(dst, now, now); err != nil {
		f.logger.Warn().Err(err).Str("path", dst).Msg("touch moved file failed")
	}

	f.pruneEmptyParents(from, filepath.Dir(src))

	return nil
}

// Purge 删除区域内修改时间早于 before 的文件.
func (f *FileSystem) Purge(ctx context.Context, area Area, before time.Time) (int, error) {
	root, ok := f.roots[area]
	if !ok {
		return 0, fmt.Errorf("%w: unknown area %s", errs.ErrIOFailure, area)
	}

	var removed int

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if !info.ModTime().Before(before) {
			return nil
		}

		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		removed++

		f.pruneEmptyParents(area, filepath.Dir(p))

		return nil
	})
	if err != nil {
		return removed, errs.Wrap(errs.ErrIOFailure, err)
	}

	return removed, nil
}

// pruneEmptyParents 自下而上删除空目录，不会删除区域根目录.
func (f *FileSystem) pruneEmptyParents(area Area, dir string) {
	root := f.roots[area]

	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove empty directory")

			return
		}

		dir = filepath.Dir(dir)
	}
}

// placeNoReplace 把 src 放到 dst，dst 已存在时失败.
// 优先使用硬链接保证原子的“不覆盖”语义，文件系统不支持时退化为检查后重命名或跨设备拷贝.
func placeNoReplace(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		if rmErr := os.Remove(src); rmErr != nil {
			return errs.Wrap(errs.ErrIOFailure, rmErr)
		}

		return nil
	}

	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", errs.ErrDestinationExists, dst)
	}

	if _, statErr := os.Lstat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", errs.ErrDestinationExists, dst)
	}

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return errs.Wrap(errs.ErrIOFailure, err)
		}

		return copyAcross(src, dst)
	}

	return nil
}

// copyAcross 跨设备移动：拷贝到目标目录的临时文件后再放置.
func copyAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}

	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err == nil {
		err = os.Chmod(tmp.Name(), filePerm)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return errs.Wrap(errs.ErrIOFailure, err)
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())

		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", errs.ErrDestinationExists, dst)
		}

		return errs.Wrap(errs.ErrIOFailure, err)
	}

	_ = os.Remove(tmp.Name())

	if err := os.Remove(src); err != nil {
		return errs.Wrap(errs.ErrIOFailure, err)
	}

	return nil
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
