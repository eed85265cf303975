package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/docvault/pkg/configs"
)

func init() {
	RegisterFactory(configs.MQTypeGoChannel, goChannelFactory)
}

// goChannelFactory 进程内 Pub/Sub，同一个实例同时充当 Publisher 与 Subscriber.
// 消息不持久化，没有订阅者时发布的消息会被丢弃.
// Publish 等待订阅者确认后再发送下一条，一次 Publish 中的消息按顺序到达.
func goChannelFactory(
	_ context.Context,
	_ *configs.MQConfig,
	logger watermill.LoggerAdapter,
	buffer int64) (
	message.Publisher, message.Subscriber, error) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	return ch, ch, nil
}
