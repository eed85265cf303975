package configs

import (
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/viper"
)

// StorageBackend blob 存储后端类型.
type StorageBackend string

const (
	// BackendFS 本地文件系统.
	BackendFS StorageBackend = "fs"
	// BackendS3 S3 兼容对象存储（MinIO）.
	BackendS3 StorageBackend = "s3"
)

const (
	DefaultStorageBackend       = BackendFS
	DefaultStorageRoot          = "data/storage"         // 加密文件根目录
	DefaultStorageDeletedRoot   = "data/deleted"         // 软删除根目录
	DefaultStorageScratchDir    = ""                     // 临时文件目录，空表示系统临时目录
	DefaultStorageEncrypt       = true                   // 是否加密
	DefaultStorageSoftDelete    = true                   // 删除时移动到软删除目录
	DefaultStorageDuplicate     = true                   // 是否允许重复文件
	DefaultStorageGlobalQuotaEn = "DOCS_GLOBAL_QUOTA"    // 全局配额环境变量名
	DefaultStorageDefaultQuota  = "10GB"                 // 新用户默认配额
	DefaultStorageSizeCacheTTL  = 10 * time.Minute       // 重新计算的文件大小缓存时间
	DefaultStorageS3Prefix      = "storage"              // S3 后端下的存储前缀
	DefaultStorageS3DeletedPref = "deleted"              // S3 后端下的软删除前缀
)

// StorageConfig 加密文件存储配置.
type StorageConfig struct {
	Backend         StorageBackend `mapstructure:"backend"          rule:"oneof=fs s3"`
	Root            string         `mapstructure:"root"             rule:"required"`
	DeletedRoot     string         `mapstructure:"deleted_root"     rule:"required,nefield=Root"`
	ScratchDir      string         `mapstructure:"scratch_dir"`
	Encrypt         bool           `mapstructure:"encrypt"`
	SoftDelete      bool           `mapstructure:"soft_delete"`
	AllowDuplicate  bool           `mapstructure:"allow_duplicate"`
	GlobalQuotaEnv  string         `mapstructure:"global_quota_env" rule:"required"`
	GlobalQuota     string         `mapstructure:"global_quota"`
	DefaultQuota    string         `mapstructure:"default_quota"    rule:"required,bytesize"`
	SizeCacheTTL    time.Duration  `mapstructure:"size_cache_ttl"`
	S3Prefix        string         `mapstructure:"s3_prefix"`
	S3DeletedPrefix string         `mapstructure:"s3_deleted_prefix"`
}

// NoGlobalQuota 表示未配置全局配额.
const NoGlobalQuota int64 = -1

// GlobalQuotaBytes 解析全局配额，未配置时返回 NoGlobalQuota.
func (c *StorageConfig) GlobalQuotaBytes() (int64, error) {
	raw := strings.TrimSpace(c.GlobalQuota)
	if raw == "" {
		return NoGlobalQuota, nil
	}

	n, err := ParseSize(raw)
	if err != nil {
		return 0, fmt.Errorf("global quota %q from %s: %w", raw, c.GlobalQuotaEnv, err)
	}

	return n, nil
}

// DefaultQuotaBytes 解析新用户默认配额.
func (c *StorageConfig) DefaultQuotaBytes() (int64, error) {
	return ParseSize(c.DefaultQuota)
}

// ParseSize 解析字节数，接受纯数字或 "10GB" 这样的可读格式.
func ParseSize(s string) (int64, error) {
	n, err := units.FromHumanSize(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	return n, nil
}

// setDefaults 设置存储配置的默认值.
func (c *StorageConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", DefaultStorageBackend)
	v.SetDefault("storage.root", DefaultStorageRoot)
	v.SetDefault("storage.deleted_root", DefaultStorageDeletedRoot)
	v.SetDefault("storage.scratch_dir", DefaultStorageScratchDir)
	v.SetDefault("storage.encrypt", DefaultStorageEncrypt)
	v.SetDefault("storage.soft_delete", DefaultStorageSoftDelete)
	v.SetDefault("storage.allow_duplicate", DefaultStorageDuplicate)
	v.SetDefault("storage.global_quota_env", DefaultStorageGlobalQuotaEn)
	v.SetDefault("storage.global_quota", "")
	v.SetDefault("storage.default_quota", DefaultStorageDefaultQuota)
	v.SetDefault("storage.size_cache_ttl", DefaultStorageSizeCacheTTL)
	v.SetDefault("storage.s3_prefix", DefaultStorageS3Prefix)
	v.SetDefault("storage.s3_deleted_prefix", DefaultStorageS3DeletedPref)
}
