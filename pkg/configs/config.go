// Package configs 管理应用程序配置，包括数据库、存储、队列与 OCR 的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv），可选监听配置文件变化.
//
// 配置在启动时加载为一个值，组件在构造时拿到各自子配置的副本，运行期间不会再读取全局状态.
//
// Example:
//
//	cfg, err := configs.Load("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cipher := encrypt.New(cfg.Storage.Encrypt)
//	fmt.Println(cfg.Storage.Root)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/docvault/pkg/rule"
)

// EnvPrefix 环境变量前缀.
const EnvPrefix = "DOCVAULT"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		DB             DBConfig             `mapstructure:"db"`              // DBConfig 数据库配置
		S3             S3Config             `mapstructure:"s3"`              // S3Config 对象存储配置
		MQ             MQConfig             `mapstructure:"mq"`              // MQConfig 消息队列配置
		KV             KVConfig             `mapstructure:"kv"`              // KVConfig 键值存储配置
		Server         ServerConfig         `mapstructure:"server"`          // ServerConfig 运维端口、调试开关等
		Log            LogConfig            `mapstructure:"log"`             // LogConfig 日志相关配置
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // MetricsConfig 监控配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // TracingConfig 链路追踪配置
		Events         EventsConfig         `mapstructure:"events"`          // EventsConfig 事件投递配置
		Storage        StorageConfig        `mapstructure:"storage"`         // StorageConfig 文件存储配置
		OCR            OCRConfig            `mapstructure:"ocr"`             // OCRConfig 内容提取配置
		Jobs           JobsConfig           `mapstructure:"jobs"`            // JobsConfig 定时任务配置
	}
)

var (
	// globalConfig 全局配置实例，仅供 CLI 与装配代码使用.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// InitConfig 加载配置到全局实例，并按需监听配置文件变化.
func InitConfig(path string) error {
	v, cfg, err := load(path)
	if err != nil {
		return err
	}

	appViper = v
	globalConfig = cfg

	watchConfig(v, cfg.Server.ReloadConfig)

	return nil
}

// Load 加载配置并返回一个独立的值，不修改全局状态.
func Load(path string) (AppConfig, error) {
	_, cfg, err := load(path)

	return cfg, err
}

func load(path string) (*viper.Viper, AppConfig, error) {
	var cfg AppConfig

	v := viper.New()
	// 设置默认值
	setAllDefaults(v)

	if path != "" {
		// 检查path是否是文件
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			v.SetConfigFile(path)
		} else {
			v.SetConfigName("config")
			v.AddConfigPath(path)
			v.AddConfigPath(path + "/configs")

			for _, ext := range []string{"yaml", "yml", "json", "toml", "env", "dotenv"} {
				file := filepath.Join(path, "config."+ext)
				if _, err := os.Stat(file); err == nil {
					v.SetConfigFile(file)

					break
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			// 没有配置文件时使用默认值与环境变量
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, cfg, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// 全局配额来自一个具名环境变量，不带前缀
	if envName := v.GetString("storage.global_quota_env"); envName != "" {
		if err := v.BindEnv("storage.global_quota", envName); err != nil {
			return nil, cfg, fmt.Errorf("bind global quota env: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}

	return v, cfg, nil
}

// Validate 按 rule 标签逐段校验配置，并解析配额字符串.
func (c *AppConfig) Validate() error {
	sections := []struct {
		name  string
		value any
	}{
		{"db", c.DB},
		{"kv", c.KV},
		{"mq", c.MQ},
		{"s3", c.S3},
		{"server", c.Server},
		{"log", c.Log},
		{"tracing", c.Tracing},
		{"events", c.Events},
		{"storage", c.Storage},
		{"ocr", c.OCR},
		{"jobs", c.Jobs},
	}

	for _, s := range sections {
		if err := rule.ValidateStruct(s.value); err != nil {
			return fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	if _, err := c.Storage.GlobalQuotaBytes(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if !c.Events.Enabled {
		return fmt.Errorf("invalid events config: events.enabled must be true, blob deletion and post-processing run in event consumers")
	}

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig  ServerConfig
		dbConfig      DBConfig
		s3Config      S3Config
		mqConfig      MQConfig
		kvConfig      KVConfig
		logConfig     LogConfig
		metricsConfig MetricsConfig
		tracingConfig TracingConfig
		eventsConfig  EventsConfig
		storageConfig StorageConfig
		ocrConfig     OCRConfig
		jobsConfig    JobsConfig
	)

	serverConfig.setDefaults(v)
	dbConfig.setDefaults(v)
	s3Config.setDefaults(v)
	mqConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	logConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	storageConfig.setDefaults(v)
	ocrConfig.setDefaults(v)
	jobsConfig.setDefaults(v)
}

// watchConfig 监听配置文件变化.
// 已构造的组件持有各自的配置副本，变化只会被校验和记录，需重启进程生效.
func watchConfig(v *viper.Viper, enabled bool) {
	if !enabled || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var next AppConfig
		if err := v.Unmarshal(&next); err != nil {
			fmt.Fprintf(os.Stderr, "config %s changed but cannot be parsed: %v\n", e.Name, err)

			return
		}

		if err := next.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config %s changed but is invalid: %v\n", e.Name, err)

			return
		}

		fmt.Fprintf(os.Stderr, "config %s changed (%s), restart to apply\n", e.Name, e.Op)
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	return appViper
}
