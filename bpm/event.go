package bpm

import "sync"

// 事件topic/action,目前只有节点状态更新一个topic
const (
	EventTopicFlowNodeInstanceState = "flow-node-instance-state"
	EventActionUpdated              = "updated"
)

// EngineEvent 引擎内部事件,payload里面是before/after字段快照
type EngineEvent struct {
	Topic    string
	Action   string
	ObjectID int64
	Payload  map[string]any
}

type EventHandler func(event *EngineEvent)

// EventService 引擎事件总线
// HasHandlers 用于在没有任何监听者时跳过事件payload的构建，纯性能短路，不是正确性依赖
type EventService interface {
	RegisterHandler(topic string, action string, handler EventHandler)
	HasHandlers(topic string, action string) bool
	Fire(event *EngineEvent)
}

func NewEventService() EventService {
	return &eventService{}
}

type eventService struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func eventKey(topic string, action string) string {
	return topic + "_" + action
}

func (s *eventService) RegisterHandler(topic string, action string, handler EventHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[string][]EventHandler)
	}
	key := eventKey(topic, action)
	s.handlers[key] = append(s.handlers[key], handler)
}

func (s *eventService) HasHandlers(topic string, action string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[eventKey(topic, action)]) > 0
}

// Fire 同步派发,handler不应该阻塞
func (s *eventService) Fire(event *EngineEvent) {
	if event == nil {
		return
	}
	s.mu.RLock()
	handlers := s.handlers[eventKey(event.Topic, event.Action)]
	s.mu.RUnlock()
	for _, handler := range handlers {
		handler(event)
	}
}
