package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis"
	MQTypeGoChannel MQType = "gochannel" // 进程内，仅单实例部署

	DefaultMQURL           = "nats://localhost:4222"
	DefaultMQMaxReconnects = 5
	DefaultMQReconnectWait = 5 * time.Second
	DefaultMQPingInterval  = 20 * time.Second
	DefaultMQMaxPingsOut   = 3
	DefaultMQReconnectBuf  = 8 * 1024 * 1024 // 断线期间缓存的发布数据
)

// MQConfig 外部消息队列配置，events.transport 为 mq 时使用.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=nats redis gochannel"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
}

// MQCommonConfig 连接参数.
type MQCommonConfig struct {
	URL             string        `mapstructure:"url"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	ClientID        string        `mapstructure:"client_id"`
	MaxReconnects   int           `mapstructure:"max_reconnects"   rule:"min=-1"` // -1 表示无限重连
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	MaxPingsOut     int           `mapstructure:"max_pings_out"    rule:"min=1"`
	ReconnectBuffer int           `mapstructure:"reconnect_buffer" rule:"min=0"`
}

// MQNATSConfig NATS 专有配置.
type MQNATSConfig struct {
	ClusterURLs   []string        `mapstructure:"cluster_urls"`
	JWT           string          `mapstructure:"jwt"`
	NKey          string          `mapstructure:"nkey"`
	SubjectPrefix string          `mapstructure:"subject_prefix"`
	LoadBalance   bool            `mapstructure:"load_balance"` // 同名消费者组成队列组
	JetStream     JetStreamConfig `mapstructure:"jetstream"`
}

// JetStreamConfig 持久化投递. 关闭时退化为 core NATS，进程离线期间的事件会丢失.
type JetStreamConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AutoProvision bool   `mapstructure:"auto_provision"`
	TrackMsgID    bool   `mapstructure:"track_msg_id"` // 按 UUID 去重
	AckAsync      bool   `mapstructure:"ack_async"`
	DurablePrefix string `mapstructure:"durable_prefix"`
}

// MQRedisConfig Redis Pub/Sub 配置.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeNATS)

	v.SetDefault("mq.common.url", DefaultMQURL)
	v.SetDefault("mq.common.user", "")
	v.SetDefault("mq.common.password", "")
	v.SetDefault("mq.common.client_id", AppName)
	v.SetDefault("mq.common.max_reconnects", DefaultMQMaxReconnects)
	v.SetDefault("mq.common.reconnect_wait", DefaultMQReconnectWait)
	v.SetDefault("mq.common.ping_interval", DefaultMQPingInterval)
	v.SetDefault("mq.common.max_pings_out", DefaultMQMaxPingsOut)
	v.SetDefault("mq.common.reconnect_buffer", DefaultMQReconnectBuf)

	v.SetDefault("mq.nats.cluster_urls", []string{})
	v.SetDefault("mq.nats.subject_prefix", AppName+".")
	v.SetDefault("mq.nats.load_balance", true)
	v.SetDefault("mq.nats.jetstream.enabled", true)
	v.SetDefault("mq.nats.jetstream.auto_provision", true)
	v.SetDefault("mq.nats.jetstream.track_msg_id", true)
	v.SetDefault("mq.nats.jetstream.ack_async", false)
	v.SetDefault("mq.nats.jetstream.durable_prefix", AppName)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.password", "")
	v.SetDefault("mq.redis.db", 0)
}
