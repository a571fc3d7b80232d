package notify

import (
	"context"
	"sync"
)

const defaultSubscriberBuffer = 16

// Hub is an in-process pub/sub keyed by group order. A subscriber that
// falls behind loses events instead of slowing the publisher down.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	buffer int
}

var _ Notifier = (*Hub)(nil)

// NewHub returns a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[string]map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events for groupOrderID and a function
// that unsubscribes and closes the channel.
func (h *Hub) Subscribe(groupOrderID string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[groupOrderID] == nil {
		h.subs[groupOrderID] = make(map[chan Event]struct{})
	}
	h.subs[groupOrderID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[groupOrderID], ch)
			if len(h.subs[groupOrderID]) == 0 {
				delete(h.subs, groupOrderID)
			}
			close(ch)
		})
	}
}

// Notify delivers e to current subscribers of its group order. It returns
// ErrDropped if any subscriber's buffer was full.
func (h *Hub) Notify(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dropped bool
	for ch := range h.subs[e.GroupOrderID] {
		select {
		case ch <- e:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrDropped
	}
	return nil
}

// Subscribers returns the number of live subscriptions for groupOrderID.
func (h *Hub) Subscribers(groupOrderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[groupOrderID])
}
