package configs

import (
	"time"

	"github.com/spf13/viper"
)

// TracingExporter span 导出方式.
type TracingExporter string

const (
	TracingOTLPHTTP TracingExporter = "otlp-http"
	TracingOTLPGRPC TracingExporter = "otlp-grpc"
	TracingZipkin   TracingExporter = "zipkin"

	DefaultTracingEndpoint     = "http://localhost:4318"
	DefaultTracingBatchTimeout = 5 * time.Second
	DefaultTracingBatchSize    = 512
	DefaultTracingQueueSize    = 2048
)

// TracingConfig OpenTelemetry 链路追踪配置.
// 文件操作、OCR 与事件投递各自开 span，运维端口的请求也会记录.
type TracingConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	ServiceName  string            `mapstructure:"service_name"`
	Exporter     TracingExporter   `mapstructure:"exporter"      rule:"oneof=otlp-http otlp-grpc zipkin"`
	Endpoint     string            `mapstructure:"endpoint"`
	SampleRatio  float64           `mapstructure:"sample_ratio"  rule:"min=0,max=1"`
	BatchTimeout time.Duration     `mapstructure:"batch_timeout"`
	BatchSize    int               `mapstructure:"batch_size"    rule:"min=1"`
	QueueSize    int               `mapstructure:"queue_size"    rule:"min=1"`
	Attributes   map[string]string `mapstructure:"attributes"` // 附加到 resource 的属性，例如部署环境
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", AppName)
	v.SetDefault("tracing.exporter", TracingOTLPHTTP)
	v.SetDefault("tracing.endpoint", DefaultTracingEndpoint)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.batch_timeout", DefaultTracingBatchTimeout)
	v.SetDefault("tracing.batch_size", DefaultTracingBatchSize)
	v.SetDefault("tracing.queue_size", DefaultTracingQueueSize)
	v.SetDefault("tracing.attributes", map[string]string{})
}
