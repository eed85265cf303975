package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 9090 // 运维端口（metrics、health）
	DefaultServerHeaderTimeout   = 10 * time.Second
	DefaultServerShutdownTimeout = 30 * time.Second
)

// ServerConfig 运维 HTTP 端口与进程级开关.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             rule:"ip"`
	Port            int           `mapstructure:"port"             rule:"min=1,max=65535"`
	HeaderTimeout   time.Duration `mapstructure:"header_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
	ReloadConfig    bool          `mapstructure:"reload_config"` // 监听配置文件变化并提示重启
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.header_timeout", DefaultServerHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.reload_config", false)
}
