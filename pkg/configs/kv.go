package configs

import (
	"time"

	"github.com/spf13/viper"
)

// KVConfig 键值存储配置，承载文件大小缓存与处理标记.
// 多进程部署需要 redis 或 nats，否则各进程看到的处理集合不同.
type KVConfig struct {
	Type       string             `mapstructure:"type"       rule:"oneof=memory redis nats groupcache"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

// RedisKVConfig Redis KV 配置.
type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
	Prefix   string `mapstructure:"prefix"` // 所有键的前缀
}

// NATSKVConfig NATS JetStream KV 配置.
type NATSKVConfig struct {
	URL      string        `mapstructure:"url"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Bucket   string        `mapstructure:"bucket"   rule:"required"`
	MaxAge   time.Duration `mapstructure:"max_age"`  // bucket 级过期，0 表示不过期
	Replicas int           `mapstructure:"replicas" rule:"min=0,max=5"`
}

// GroupcacheKVConfig Groupcache KV 配置，只适合不可变的值.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"`
	Self       string   `mapstructure:"self"`  // 本节点运维端口的 URL
	Peers      []string `mapstructure:"peers"` // 含本节点在内的全部节点
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "memory")

	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.password", "")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.redis.prefix", AppName+":")

	v.SetDefault("kv.nats.url", "nats://localhost:4222")
	v.SetDefault("kv.nats.bucket", AppName)
	v.SetDefault("kv.nats.max_age", 24*time.Hour)
	v.SetDefault("kv.nats.replicas", 1)

	v.SetDefault("kv.groupcache.name", AppName+"-sizes")
	v.SetDefault("kv.groupcache.cache_bytes", 64*1024*1024)
	v.SetDefault("kv.groupcache.self", "http://localhost:9090")
	v.SetDefault("kv.groupcache.peers", []string{})
}
