package configs

import "github.com/spf13/viper"

// LogFormat stderr 输出格式.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console" // 人类可读
	LogFormatJSON    LogFormat = "json"

	DefaultLogLevel = "info"
	DefaultLogFile  = "logs/docvault.log"
)

// LogConfig 日志配置，文件输出由 lumberjack 轮转.
type LogConfig struct {
	Level  string        `mapstructure:"level"` // zerolog 级别名
	Format LogFormat     `mapstructure:"format" rule:"oneof=console json"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig 文件日志与轮转.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func (l *LogConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", LogFormatConsole)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", DefaultLogFile)
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.max_age_days", 28)
	v.SetDefault("log.file.compress", true)
}
