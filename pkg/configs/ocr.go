package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultOCRBinary         = "tesseract"
	DefaultOCRTargetSize     = 3500 // 归一化后长边像素
	DefaultOCRLanguage       = "eng"
	DefaultOCRTimeout        = 2 * time.Minute
	DefaultOCRMaxStderrBytes = 64 * 1024

	DefaultOCRBreakerFailureRate = 0.5
	DefaultOCRBreakerMinRuns     = 10
	DefaultOCRBreakerInterval    = time.Minute
	DefaultOCRBreakerCooldown    = 30 * time.Second
	DefaultOCRBreakerHalfOpen    = 2

	DefaultOCRRunsPerSecond = 2.0
	DefaultOCRBurst         = 4
)

type (
	// OCRConfig 内容提取配置.
	OCRConfig struct {
		Binary          string           `mapstructure:"binary"           rule:"required"`
		TargetSize      int              `mapstructure:"target_size"      rule:"min=1"`
		DefaultLanguage string           `mapstructure:"default_language" rule:"required,ocrlang"`
		Timeout         time.Duration    `mapstructure:"timeout"`
		MaxStderrBytes  int              `mapstructure:"max_stderr_bytes" rule:"min=0"`
		ScratchDir      string           `mapstructure:"scratch_dir"`
		Breaker         OCRBreakerConfig `mapstructure:"breaker"`
		RateLimit       OCRRateConfig    `mapstructure:"rate_limit"`
	}

	// OCRBreakerConfig OCR 程序连续失败时的熔断配置.
	OCRBreakerConfig struct {
		Enabled     bool          `mapstructure:"enabled"`
		FailureRate float64       `mapstructure:"failure_rate" rule:"min=0,max=1"` // 窗口内失败比例阈值
		MinRuns     uint32        `mapstructure:"min_runs"`                        // 参与统计的最少运行次数
		Interval    time.Duration `mapstructure:"interval"`                        // 计数窗口
		Cooldown    time.Duration `mapstructure:"cooldown"`                        // 打开后多久进入半开
		HalfOpen    uint32        `mapstructure:"half_open"`                       // 半开状态允许通过的请求数
	}

	// OCRRateConfig 限制每秒启动的 OCR 进程数，避免批量上传时同时拉起过多进程.
	OCRRateConfig struct {
		Enabled       bool    `mapstructure:"enabled"`
		RunsPerSecond float64 `mapstructure:"runs_per_second" rule:"min=0"`
		Burst         int     `mapstructure:"burst"           rule:"min=0"`
	}
)

// setDefaults 设置 OCR 配置的默认值.
func (c *OCRConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("ocr.binary", DefaultOCRBinary)
	v.SetDefault("ocr.target_size", DefaultOCRTargetSize)
	v.SetDefault("ocr.default_language", DefaultOCRLanguage)
	v.SetDefault("ocr.timeout", DefaultOCRTimeout)
	v.SetDefault("ocr.max_stderr_bytes", DefaultOCRMaxStderrBytes)
	v.SetDefault("ocr.scratch_dir", "")

	v.SetDefault("ocr.breaker.enabled", false)
	v.SetDefault("ocr.breaker.failure_rate", DefaultOCRBreakerFailureRate)
	v.SetDefault("ocr.breaker.min_runs", DefaultOCRBreakerMinRuns)
	v.SetDefault("ocr.breaker.interval", DefaultOCRBreakerInterval)
	v.SetDefault("ocr.breaker.cooldown", DefaultOCRBreakerCooldown)
	v.SetDefault("ocr.breaker.half_open", DefaultOCRBreakerHalfOpen)

	v.SetDefault("ocr.rate_limit.enabled", false)
	v.SetDefault("ocr.rate_limit.runs_per_second", DefaultOCRRunsPerSecond)
	v.SetDefault("ocr.rate_limit.burst", DefaultOCRBurst)
}
