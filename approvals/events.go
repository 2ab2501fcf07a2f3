package approvals

import (
	"sync"
	"time"

	"github.com/BaSui01/approvalflow/types"
)

// EventType 引擎事件类型
type EventType string

const (
	EventCreated  EventType = "created"
	EventResolved EventType = "resolved"
)

// Event 请求生命周期事件
type Event struct {
	Type       EventType              `json:"type"`
	ApprovalID string                 `json:"approval_id"`
	Kind       types.ApprovalKind     `json:"kind"`
	Request    types.ApprovalRequest  `json:"request"`
	Outcome    *types.ApprovalOutcome `json:"outcome,omitempty"`
	Resolver   types.Resolver         `json:"resolver,omitempty"`
	At         time.Time              `json:"at"`
}

// eventHub 非阻塞扇出，订阅者缓冲区满时丢弃事件
type eventHub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[uint64]chan Event)}
}

func (h *eventHub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

// publish 返回被丢弃的订阅者数量
func (h *eventHub) publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
