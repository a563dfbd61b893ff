package ports

import "github.com/ghalamif/TelemFlow/internal/domain"

// Notifier delivers session events to the presentation layer. Implementations
// must not block the caller.
type Notifier interface {
	Notify(ev domain.Event)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(domain.Event)

func (f NotifierFunc) Notify(ev domain.Event) { f(ev) }
