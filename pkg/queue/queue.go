// Package queue 定义文件事件、统一的消息信封以及把一次操作的事件整体投递的 Dispatcher.
//
// 概览
//   - 所有文件事件发布在同一个主题 TopicFileEvents 上，事件类型写在信封头部
//   - 统一的消息封装：Message[Payload] = Header + Payload
//   - 默认 JSON 编解码（bytedance/sonic）
//   - 操作执行期间事件先收集在 Outbox 中，操作成功后由 Dispatcher 以一次 Publish 调用发出，
//     同一批次的事件在订阅者处连续且有序
//
// 消息信封（Envelope）JSON 结构
//
//	{
//	  "header": {
//	    "type": "dv.file.created",
//	    "topic": "dv.file.events",
//	    "trace_id": "optional-trace-id",
//	    "producer": "docvault",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1",
//	    "batch_id": "01J9...",
//	    "seq": 0,
//	    "batch_size": 2
//	  },
//	  "payload": { "file_id": "...", "user_id": "...", "source_path": "/tmp/upload-123" }
//	}
//
// 消费示例
//
//	hdr, _ := queue.ParseHeader(msg)
//	switch hdr.Type {
//	case queue.EventFileCreated:
//	    env, _ := queue.ParseWatermillMessage[queue.FileCreatedPayload](msg)
//	    // 使用 env.Payload ...
//	}
//
// 注意事项
//  1. occurred_at 为 UTC，RFC3339 格式
//  2. version 便于后向兼容，消费者应忽略未知字段
//  3. FileCreated 的 source_path 指向临时文件，事件不保证其长期存在
package queue

import (
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

const (
	PayloadVersionV1 string = "v1"
)

// NewEventHeader 便捷创建事件头.
func NewEventHeader(eventType EventType, topic string, opts ...func(*EventHeader)) EventHeader {
	hdr := EventHeader{
		Type:       eventType,
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) func(*EventHeader) { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// WithBatch 设置批次信息.
func WithBatch(id string, seq, size int) func(*EventHeader) {
	return func(h *EventHeader) {
		h.BatchID = id
		h.Seq = seq
		h.BatchSize = size
	}
}

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造一个 watermill 消息，设置 ID 与元数据.
func NewWatermillMessage[T any](eventType EventType, topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(eventType, topic, opts...)
	env := Message[T]{Header: header, Payload: payload}

	data, err := Encode(env)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(watermill.NewULID(), data)
	msg.Metadata.Set("type", string(eventType))
	msg.Metadata.Set("topic", topic)

	if header.TraceID != "" {
		msg.Metadata.Set("trace_id", header.TraceID)
	}

	if header.Producer != "" {
		msg.Metadata.Set("producer", header.Producer)
	}

	msg.Metadata.Set("occurred_at", header.OccurredAt.Format(time.RFC3339Nano))

	if header.Version != "" {
		msg.Metadata.Set("version", header.Version)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}

// ParseHeader 只解析信封头部.
func ParseHeader(msg *message.Message) (EventHeader, error) {
	env, err := Decode[struct{}](msg.Payload)

	return env.Header, err
}
