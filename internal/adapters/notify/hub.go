package notify

import (
	"sync"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// Hub fans session events out to any number of subscribers. Notify never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	obs ports.Observability

	mu     sync.RWMutex
	subs   map[uint64]chan domain.Event
	nextID uint64
	closed bool
}

func NewHub(obs ports.Observability) *Hub {
	return &Hub{obs: obs, subs: make(map[uint64]chan domain.Event)}
}

// Subscribe registers a listener. The returned cancel function unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Notify(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if h.obs != nil {
				h.obs.LogError("event_dropped", errSubscriberFull,
					ports.Field{Key: "kind", Value: string(ev.Kind)},
					ports.Field{Key: "session", Value: ev.SessionID})
			}
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
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

var _ ports.Notifier = (*Hub)(nil)
