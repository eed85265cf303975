// Package s3 处理S3存储连接.
package s3

import (
	"context"
	"fmt"
	"net/url"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/docvault/pkg/configs"
	nlog "github.com/yeisme/docvault/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	bucket string
}

// New 初始化 MinIO 客户端，若 bucket 不存在则尝试创建.
func New(ctx context.Context, cfg configs.S3Config) (*Client, error) {
	endpoint := cfg.Endpoint
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo("docvault", configs.AppVersion)

	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	exists, err := cli.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}

	if !exists {
		if err := cli.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}

		nlog.Logger().Info().Str("bucket", cfg.BucketName).Msg("bucket created")
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("s3 connected")

	return &Client{Client: cli, bucket: cfg.BucketName}, nil
}

// Bucket 返回文件所在的 bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

// HealthCheck 简单的健康检查，通过检查 bucket 来验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BucketExists(ctx, c.bucket)

	return err
}
