package queue

import (
	"context"
	"fmt"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/docvault/pkg/tracing"
)

// Publisher 以一次调用发布多条消息，mq.Client 满足该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// Dispatcher 把一次操作的事件作为一个批次发布.
// 批次之间互斥，同一批次的消息在一次 Publish 调用中发出，订阅者看到的批次连续且有序.
type Dispatcher struct {
	pub      Publisher
	topic    string
	producer string
	logger   zerolog.Logger

	mu sync.Mutex
}

// DispatcherOption 配置 Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTopic 设置发布主题，默认 TopicFileEvents.
func WithTopic(topic string) DispatcherOption {
	return func(d *Dispatcher) { d.topic = topic }
}

// WithProducerName 设置信封中的 producer.
func WithProducerName(name string) DispatcherOption {
	return func(d *Dispatcher) { d.producer = name }
}

// WithDispatcherLogger 设置日志.
func WithDispatcherLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher 创建 Dispatcher，pub 为 nil 时事件被丢弃.
func NewDispatcher(pub Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{pub: pub, topic: TopicFileEvents, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Topic 返回发布主题.
func (d *Dispatcher) Topic() string {
	return d.topic
}

// Dispatch 发布一个批次，调用方应在操作成功提交后调用.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	if d.pub == nil {
		d.logger.Debug().Int("events", len(events)).Msg("事件投递未启用，丢弃事件")

		return nil
	}

	msgs, err := d.encode(ctx, events)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.pub.Publish(ctx, d.topic, msgs...); err != nil {
		return fmt.Errorf("publish %d events: %w", len(msgs), err)
	}

	d.logger.Debug().Int("events", len(msgs)).Str("batch_id", msgs[0].Metadata.Get("batch_id")).Msg("事件已投递")

	return nil
}

func (d *Dispatcher) encode(ctx context.Context, events []Event) ([]*message.Message, error) {
	batchID := watermill.NewULID()
	traceID := tracing.TraceID(ctx)
	msgs := make([]*message.Message, 0, len(events))

	for i, ev := range events {
		opts := []func(*EventHeader){
			WithBatch(batchID, i, len(events)),
			WithProducer(d.producer),
			WithTraceID(traceID),
		}

		msg, err := NewWatermillMessage(ev.Type, d.topic, ev.Payload, opts...)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
		}

		msg.Metadata.Set("batch_id", batchID)
		msgs = append(msgs, msg)
	}

	return msgs, nil
}
