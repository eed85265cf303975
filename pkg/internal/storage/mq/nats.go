package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/docvault/pkg/configs"
)

// natsDrainTimeout 关闭时等待未确认消息处理完的时间.
const natsDrainTimeout = 30 * time.Second

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsOptions 连接、重连与认证选项. JWT 优先于用户名密码.
func natsOptions(cfg *configs.MQConfig) []nc.Option {
	c := cfg.Common

	opts := []nc.Option{
		nc.Name(c.ClientID),
		nc.MaxReconnects(c.MaxReconnects),
		nc.ReconnectWait(c.ReconnectWait),
		nc.PingInterval(c.PingInterval),
		nc.MaxPingsOutstanding(c.MaxPingsOut),
		nc.ReconnectBufSize(c.ReconnectBuffer),
		nc.DrainTimeout(natsDrainTimeout),
		nc.RetryOnFailedConnect(true),
	}

	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case c.User != "":
		opts = append(opts, nc.UserInfo(c.User, c.Password))
	}

	return opts
}

func jetStreamConfig(cfg configs.JetStreamConfig) nats.JetStreamConfig {
	if !cfg.Enabled {
		return nats.JetStreamConfig{Disabled: true}
	}

	return nats.JetStreamConfig{
		AutoProvision: cfg.AutoProvision,
		TrackMsgId:    cfg.TrackMsgID,
		AckAsync:      cfg.AckAsync,
		DurablePrefix: cfg.DurablePrefix,
	}
}

func natsURL(cfg *configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	return cfg.Common.URL
}

// natsSubjects 给主题加上配置的前缀，多个部署可以共用一个 NATS.
func natsSubjects(prefix string) nats.SubjectCalculator {
	return func(queueGroupPrefix, topic string) *nats.SubjectDetail {
		return nats.DefaultSubjectCalculator(queueGroupPrefix, prefix+topic)
	}
}

// natsFactory 创建 NATS Publisher 与 Subscriber，开启 JetStream 时事件在进程离线期间保留.
func natsFactory(
	_ context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter,
	_ int64) (
	message.Publisher, message.Subscriber, error) {
	var (
		opts      = natsOptions(cfg)
		js        = jetStreamConfig(cfg.NATS.JetStream)
		marshaler = &nats.JSONMarshaler{}
		subjects  = natsSubjects(cfg.NATS.SubjectPrefix)
		url       = natsURL(cfg)
	)

	logger.Info("connecting to NATS", watermill.LogFields{
		"url":       url,
		"jetstream": cfg.NATS.JetStream.Enabled,
		"prefix":    cfg.NATS.SubjectPrefix,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:               url,
		NatsOptions:       opts,
		JetStream:         js,
		Marshaler:         marshaler,
		SubjectCalculator: subjects,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subCfg := nats.SubscriberConfig{
		URL:               url,
		NatsOptions:       opts,
		JetStream:         js,
		Unmarshaler:       marshaler,
		SubjectCalculator: subjects,
	}

	// 同名消费者组成队列组，每个事件只由一个实例处理
	if cfg.NATS.LoadBalance {
		subCfg.QueueGroupPrefix = strings.TrimSuffix(cfg.NATS.SubjectPrefix, ".")
	}

	sub, err := nats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()

		return nil, nil, err
	}

	return pub, sub, nil
}
