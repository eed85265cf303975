// Package blob 负责加密文件在存储后端中的命名与读写.
//
// 每个文件占用一个以文件 ID 命名的目录，目录中最多有三个产物：
//
//	<userID>/<fileID>/<fileID>        原始内容
//	<userID>/<fileID>/<fileID>_web    网页预览
//	<userID>/<fileID>/<fileID>_thumb  缩略图
//
// 软删除区使用完全相同的相对路径，恢复只是一次移动.
// 本包不关心加密，只负责位置与字节搬运.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/yeisme/docvault/pkg/internal/errs"
)

// Area 存储区域.
type Area int

const (
	// Live 正常存储区.
	Live Area = iota
	// Deleted 软删除区.
	Deleted
)

func (a Area) String() string {
	switch a {
	case Live:
		return "live"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("area(%d)", int(a))
	}
}

// Artifact 文件的派生产物后缀.
type Artifact string

const (
	Primary Artifact = ""
	Web     Artifact = "_web"
	Thumb   Artifact = "_thumb"
)

// Artifacts 按删除顺序排列的全部产物.
var Artifacts = []Artifact{Primary, Web, Thumb}

// Ref 定位一个文件所需的身份信息.
type Ref struct {
	UserID string
	FileID string
}

// Paths 一个文件在某个区域内的相对位置（以 / 分隔）.
type Paths struct {
	Dir     string
	Primary string
	Web     string
	Thumb   string
}

// Key 返回指定产物的相对路径.
func (p Paths) Key(a Artifact) string {
	switch a {
	case Web:
		return p.Web
	case Thumb:
		return p.Thumb
	default:
		return p.Primary
	}
}

// Resolve 计算文件的相对存储位置，结果与区域无关.
func Resolve(ref Ref) (Paths, error) {
	if err := checkSegment(ref.UserID); err != nil {
		return Paths{}, fmt.Errorf("user id: %w", err)
	}

	if err := checkSegment(ref.FileID); err != nil {
		return Paths{}, fmt.Errorf("file id: %w", err)
	}

	dir := path.Join(ref.UserID, ref.FileID)
	base := path.Join(dir, ref.FileID)

	return Paths{
		Dir:     dir,
		Primary: base + string(Primary),
		Web:     base + string(Web),
		Thumb:   base + string(Thumb),
	}, nil
}

// checkSegment 拒绝空值与路径穿越.
func checkSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: invalid path segment %q", errs.ErrIOFailure, s)
	}

	return nil
}

// Store blob 存储后端.
// 所有方法的 key 均为 Resolve 给出的相对路径.
type Store interface {
	// Exists 判断 key 是否存在.
	Exists(ctx context.Context, area Area, key string) (bool, error)
	// Create 写入新对象，目标已存在时返回 errs.ErrDestinationExists. 返回写入字节数.
	Create(ctx context.Context, area Area, key string, r io.Reader) (int64, error)
	// Open 打开对象读取.
	Open(ctx context.Context, area Area, key string) (io.ReadCloser, error)
	// Remove 删除对象.
	Remove(ctx context.Context, area Area, key string) error
	// RemoveDir 删除空目录，目录不存在或非空时不报错.
	RemoveDir(ctx context.Context, area Area, dir string) error
	// Move 在区域间移动对象，不覆盖已存在的目标.
	Move(ctx context.Context, from, to Area, key string) error
	// Purge 删除区域内修改时间早于 before 的对象，返回删除数量.
	Purge(ctx context.Context, area Area, before time.Time) (int, error)
	// Name 后端名称.
	Name() string
}
