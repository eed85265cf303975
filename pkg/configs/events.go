package configs

import "github.com/spf13/viper"

// EventsTransport 事件投递方式.
type EventsTransport string

const (
	// EventsTransportLocal 进程内 watermill gochannel.
	EventsTransportLocal EventsTransport = "local"
	// EventsTransportMQ 通过 mq 配置的外部消息队列.
	EventsTransportMQ EventsTransport = "mq"

	DefaultEventsTopic    = "dv.file.events"
	DefaultEventsProducer = "docvault"
	DefaultEventsBuffer   = 256
)

// EventsConfig 控制文件事件的投递.
type EventsConfig struct {
	Enabled   bool            `mapstructure:"enabled"`   // 必须为 true，保留该键以便明确拒绝关闭
	Transport EventsTransport `mapstructure:"transport"  rule:"oneof=local mq"`
	Topic     string          `mapstructure:"topic"      rule:"required"`
	Producer  string          `mapstructure:"producer"`
	Buffer    int64           `mapstructure:"buffer"     rule:"min=0"` // gochannel 订阅者缓冲
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.transport", EventsTransportLocal)
	v.SetDefault("events.topic", DefaultEventsTopic)
	v.SetDefault("events.producer", DefaultEventsProducer)
	v.SetDefault("events.buffer", DefaultEventsBuffer)
}
