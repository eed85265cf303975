package queue

// Event 一条待投递的事件.
type Event struct {
	Type    EventType
	Payload any
}

// FileCreated 构造文件创建事件.
func FileCreated(p FileCreatedPayload) Event {
	return Event{Type: EventFileCreated, Payload: p}
}

// FileDeleted 构造文件删除事件.
func FileDeleted(p FileDeletedPayload) Event {
	return Event{Type: EventFileDeleted, Payload: p}
}

// DocumentUpdated 构造文档更新事件.
func DocumentUpdated(p DocumentUpdatedPayload) Event {
	return Event{Type: EventDocumentUpdated, Payload: p}
}

// Outbox 收集一次操作产生的事件，操作成功后整体交给 Dispatcher.
// 零值可用，不是并发安全的.
type Outbox struct {
	events []Event
}

// Add 追加事件.
func (o *Outbox) Add(events ...Event) {
	o.events = append(o.events, events...)
}

// Events 返回已收集的事件.
func (o *Outbox) Events() []Event {
	return o.events
}

// Len 事件数量.
func (o *Outbox) Len() int {
	return len(o.events)
}
