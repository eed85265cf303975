// Package queue 定义文件事件的主题与类型.
package queue

// TopicFileEvents 所有文件事件共用的主题.
// 同一次操作产生的多个事件必须在同一主题上按顺序连续投递，因此不按事件类型拆分主题.
const TopicFileEvents = "dv.file.events"

// EventType 事件类型，写在信封头部，Redis Pub/Sub 等不传递元数据的实现也能区分.
type EventType string

// 事件类型命名：dv.<域>.<动作>.
const (
	EventFileCreated     EventType = "dv.file.created"     // 文件已加密写入并完成记账，待后处理
	EventFileDeleted     EventType = "dv.file.deleted"     // 文件已被用户删除，存储可能已不存在
	EventDocumentUpdated EventType = "dv.document.updated" // 文档下的文件发生了变化
)
