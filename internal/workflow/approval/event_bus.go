package approval

import (
	"sync"
	"time"

	"backend/internal/workflow"
)

// 事件类型
const (
	EventGateOpened  = "gate_opened"  // 审批门控开放
	EventGateDecided = "gate_decided" // 审批门控关闭
)

// Event 审批事件
type Event struct {
	Type         string                `json:"type"`
	WorkflowID   string                `json:"workflow_id"`
	CheckpointID string                `json:"checkpoint_id"`
	Stage        workflow.Stage        `json:"stage"`
	Decision     workflow.DecisionType `json:"decision,omitempty"`
	Actor        string                `json:"actor,omitempty"`
	AutoApproved bool                  `json:"auto_approved,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

// EventBus 审批事件总线
// 按工作流ID订阅；发布非阻塞，慢消费者丢弃事件
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string]map[uint64]chan Event),
	}
}

// Subscribe 订阅指定工作流的审批事件
// 返回事件通道与取消函数；取消后通道关闭
func (b *EventBus) Subscribe(workflowID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	ch := make(chan Event, 16)
	if b.subs[workflowID] == nil {
		b.subs[workflowID] = make(map[uint64]chan Event)
	}
	b.subs[workflowID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[workflowID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(b.subs, workflowID)
			}
		}
	}
	return ch, cancel
}

// Publish 发布事件（非阻塞）
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[evt.WorkflowID] {
		select {
		case ch <- evt:
		default:
			// 订阅者处理不过来时丢弃，不能阻塞审批主流程
		}
	}
}
