package configs

import "github.com/spf13/viper"

// S3Config MinIO 或其它 S3 兼容服务，storage.backend 为 s3 时使用.
// endpoint 可以带 http:// 或 https://，带 https 时忽略 use_ssl.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name" rule:"required"`
	Region          string `mapstructure:"region"`
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.bucket_name", AppName)
	v.SetDefault("s3.region", "us-east-1")
}
