package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/docvault/pkg/configs"
)

// RedisPublisher Redis Publisher 实现.
type RedisPublisher struct {
	client *redis.Client
}

// RedisSubscriber Redis Subscriber 实现.
// Redis Pub/Sub 只传递负载，元数据不会跨进程保留.
type RedisSubscriber struct {
	client  *redis.Client
	subs    []*redis.PubSub
	buffer  int64
	logger  watermill.LoggerAdapter
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// init 注册 Redis 工厂.
func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFactory 创建 Redis Publisher & Subscriber.
func redisFactory(
	ctx context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter,
	buffer int64) (
	message.Publisher, message.Subscriber, error) {
	// 创建 Redis 客户端
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// 创建 Publisher
	pub := &RedisPublisher{
		client: rdb,
	}

	// 创建 Subscriber
	sub := &RedisSubscriber{
		client:  rdb,
		buffer:  buffer,
		logger:  logger,
		closeCh: make(chan struct{}),
	}

	return pub, sub, nil
}

// Publish 实现 Publisher 接口，同一批消息在一个 pipeline 中按顺序发送.
func (p *RedisPublisher) Publish(topic string, msgs ...*message.Message) error {
	_, err := p.client.Pipelined(context.Background(), func(pipe redis.Pipeliner) error {
		for _, msg := range msgs {
			pipe.Publish(context.Background(), topic, []byte(msg.Payload))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

// Close 实现 Publisher 接口.
// 客户端与 Subscriber 共享，由 Subscriber 负责关闭.
func (p *RedisPublisher) Close() error {
	return nil
}

// Subscribe 实现 Subscriber 接口.
// 每条消息在被 Ack 或 Nack 之前不会投递下一条，保证同一订阅内的顺序.
func (s *RedisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("redis subscriber closed")
	}

	ps := s.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()

		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	s.subs = append(s.subs, ps)

	ch := make(chan *message.Message, s.buffer)

	go func() {
		defer close(ch)

		in := ps.Channel()

		for {
			select {
			case <-s.closeCh:
				return
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}

				if !s.deliver(ctx, ch, []byte(m.Payload)) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// deliver 投递一条消息并等待确认，Nack 时重新投递.
func (s *RedisSubscriber) deliver(ctx context.Context, ch chan<- *message.Message, payload []byte) bool {
	for {
		msg := message.NewMessage(watermill.NewUUID(), payload)

		select {
		case ch <- msg:
		case <-s.closeCh:
			return false
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			s.logger.Debug("redis message nacked, redelivering", watermill.LogFields{"uuid": msg.UUID})
		case <-s.closeCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Close 实现 Subscriber 接口.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.closeCh)

	for _, ps := range s.subs {
		if err := ps.Close(); err != nil {
			s.logger.Error("close redis subscription", err, nil)
		}
	}

	return s.client.Close()
}
