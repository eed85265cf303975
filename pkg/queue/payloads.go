package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Type 事件类型，消费者据此选择负载结构.
	Type EventType `json:"type"`
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
	// BatchID 同一次操作产生的事件共享的批次 ID.
	BatchID string `json:"batch_id,omitempty"`
	// Seq 事件在批次中的位置，从 0 开始.
	Seq int `json:"seq"`
	// BatchSize 批次中的事件总数.
	BatchSize int `json:"batch_size,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
// T 即不同事件类型对应的负载结构体.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// FileCreatedPayload 文件创建.
// SourcePath 指向仍未加密的源文件，消费者必须在其被回收前读取.
type FileCreatedPayload struct {
	FileID     string  `json:"file_id"`
	UserID     string  `json:"user_id"`
	Language   *string `json:"language,omitempty"`
	SourcePath string  `json:"source_path,omitempty"`
	MimeType   string  `json:"mime_type,omitempty"`
}

// FileDeletedPayload 文件删除，携带下游更新派生状态所需的全部信息.
type FileDeletedPayload struct {
	FileID     string  `json:"file_id"`
	UserID     string  `json:"user_id"`
	DocumentID *string `json:"document_id,omitempty"`
	FileName   string  `json:"file_name"`
	FileSize   int64   `json:"file_size"`
}

// DocumentUpdatedPayload 文档下的文件发生了变化.
type DocumentUpdatedPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}
