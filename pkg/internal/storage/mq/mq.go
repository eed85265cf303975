// Package mq 提供基于 Watermill 库的统一消息队列操作接口。
// 支持发布/订阅模式，并通过工厂模式抽象不同的 MQ 实现。
//
// 支持的 MQ 类型：
//   - NATS（支持 JetStream）
//   - Redis Pub/Sub
//   - GoChannel（进程内，单实例部署与测试使用）
//
// Client 封装 Publisher、Subscriber 与一个惰性创建的 Router，消费者以 handler 的形式挂到 Router 上。
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ, mq.WithLogger(log.Component("mq")))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.AddConsumer("ocr", "dv.file.events", func(msg *message.Message) error {
//		fmt.Println(string(msg.Payload))
//		return nil
//	})
//	go client.Run(ctx)
//	<-client.Running()
//
//	err = client.Publish(ctx, "dv.file.events", msg1, msg2)
package mq

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/configs"
)

const (
	// DefaultChannelBufferSize 默认订阅通道缓冲区大小.
	DefaultChannelBufferSize = 100
	// DefaultHandlerRetries handler 失败后的重试次数.
	DefaultHandlerRetries = 2
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
// buffer 为订阅通道的缓冲大小，不需要缓冲的实现可以忽略.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter, buffer int64) (message.Publisher, message.Subscriber, error)

var (
	factories = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// GetRegisteredMQTypes 返回已注册的消息队列类型列表.
func GetRegisteredMQTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Option 配置 Client.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	registry prometheus.Registerer
	buffer   int64
}

// WithLogger 设置日志.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics 把 Publisher、Subscriber 与 Router 的指标注册到 reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithBuffer 设置订阅通道缓冲.
func WithBuffer(n int64) Option {
	return func(o *options) { o.buffer = n }
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	mqType     configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	metrics    *metrics.PrometheusMetricsBuilder

	mu     sync.Mutex
	router *message.Router
}

// New 按配置创建消息队列客户端.
func New(ctx context.Context, cfg configs.MQConfig, opts ...Option) (*Client, error) {
	o := options{logger: zerolog.Nop(), buffer: DefaultChannelBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLoggerAdapter(o.logger)

	pub, sub, err := factory(ctx, &cfg, logger, o.buffer)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	c := &Client{mqType: cfg.Type, publisher: pub, subscriber: sub, logger: logger}

	if o.registry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(o.registry, "docvault", "mq")

		if c.publisher, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if c.subscriber, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}

		c.metrics = &builder
	}

	o.logger.Info().Str("type", string(cfg.Type)).Msg("MQ 客户端已初始化")

	return c, nil
}

// Type 返回消息队列类型.
func (c *Client) Type() configs.MQType {
	return c.mqType
}

// Publish 在一次调用中发布全部消息.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	if len(msgs) == 0 {
		return nil
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// Router 返回客户端的 Router，首次调用时创建并挂载通用中间件.
func (c *Client) Router() (*message.Router, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.router != nil {
		return c.router, nil
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      DefaultHandlerRetries,
			InitialInterval: 200 * time.Millisecond,
			Logger:          c.logger,
		}.Middleware,
	)

	if c.metrics != nil {
		c.metrics.AddPrometheusRouterMetrics(router)
	}

	c.router = router

	return router, nil
}

// AddConsumer 注册一个只消费的 handler.
func (c *Client) AddConsumer(name, topic string, h message.NoPublishHandlerFunc) error {
	router, err := c.Router()
	if err != nil {
		return err
	}

	router.AddNoPublisherHandler(name, topic, c.subscriber, h)

	return nil
}

// Run 运行 Router，直到 ctx 取消或 Close.
func (c *Client) Run(ctx context.Context) error {
	router, err := c.Router()
	if err != nil {
		return err
	}

	return router.Run(ctx)
}

// Running 在 Router 开始消费后关闭.
func (c *Client) Running() <-chan struct{} {
	router, err := c.Router()
	if err != nil {
		ch := make(chan struct{})
		close(ch)

		return ch
	}

	return router.Running()
}

// Close 关闭资源.
func (c *Client) Close() error {
	var err error

	c.mu.Lock()
	router := c.router
	c.mu.Unlock()

	if router != nil {
		// 停止 router，确保所有 handler 停止运行
		if e := router.Close(); e != nil {
			err = e
		}
	}

	if c.publisher != nil {
		if e := c.publisher.Close(); e != nil {
			err = e
		}
	}

	if c.subscriber != nil {
		if e := c.subscriber.Close(); e != nil {
			err = e
		}
	}

	return err
}
