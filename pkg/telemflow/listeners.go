package telemflow

import (
	"sync"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

// NewCallbackListener adapts a function into a Listener so callers can react
// to session events without defining structs. Started events are delivered on
// the goroutine that called StartSession, stopped and fault events on the
// acquisition goroutine; fn must return quickly. It may query the Runtime.
func NewCallbackListener(fn func(Event)) Listener {
	if fn == nil {
		return ports.NotifierFunc(func(domain.Event) {})
	}
	return ports.NotifierFunc(fn)
}

// NewChannelListener exposes events via a channel; it returns the listener, the
// read-only channel, and a close function that the caller should invoke during
// shutdown. Events that do not fit in buffer are dropped.
func NewChannelListener(buffer int) (Listener, <-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	l := &channelListener{ch: ch}
	return l, ch, l.close
}

type channelListener struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped uint64
}

func (l *channelListener) Notify(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- ev:
	default:
		l.dropped++
	}
}

func (l *channelListener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

// fanout delivers each event to every listener in order.
type fanout []Listener

func (f fanout) Notify(ev Event) {
	for _, l := range f {
		l.Notify(ev)
	}
}
