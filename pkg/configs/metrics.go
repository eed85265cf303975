package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标配置，/metrics 挂在运维端口上.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RuntimeMetrics bool `mapstructure:"runtime_metrics"` // Go 运行时与进程指标
	DBStats        bool `mapstructure:"db_stats"`        // gorm 连接池指标
	Pprof          bool `mapstructure:"pprof"`           // 同时暴露 /debug/pprof
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.db_stats", true)
	v.SetDefault("metrics.pprof", false)
}
