// Package notify pushes reload notifications to browser clients.
package notify

import (
	"sync"
	"time"
)

const defaultSubscriberBuffer = 16

const (
	TypeSourceChanged = "source_changed"
	TypeRerun         = "rerun"
	TypeExited        = "exited"
)

// Message is one notification sent to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans messages out to subscribers. Slow subscribers miss messages
// rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Message
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint64]chan Message),
	}
}

func (h *Hub) Subscribe(buffer int) (<-chan Message, func()) {
	if h == nil {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	ch := make(chan Message, buffer)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
	}
}

func (h *Hub) Broadcast(message Message) {
	if h == nil {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
