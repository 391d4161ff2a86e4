package realtime

import (
	"context"
	"sync"
)

// Mux routes events to handlers registered per kind. A Mux may be shared by
// several subscriptions; registration and dispatch are safe to run
// concurrently.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Kind][]func(context.Context, Event)
	catchAll []func(context.Context, Event)
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[Kind][]func(context.Context, Event))}
}

// On registers a typed handler for the payload type P.
//
//	realtime.On(mux, func(ctx context.Context, ev realtime.Event, p realtime.DishPaid) {
//		refetch(ev.TableID)
//	})
func On[P Payload](m *Mux, fn func(ctx context.Context, ev Event, p P)) {
	var zero P
	kind := zero.Kind()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], func(ctx context.Context, ev Event) {
		p, ok := ev.Payload.(P)
		if !ok {
			return
		}
		fn(ctx, ev, p)
	})
}

// OnAny registers a handler that receives every event.
func (m *Mux) OnAny(fn func(ctx context.Context, ev Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catchAll = append(m.catchAll, fn)
}

// Handles reports whether any handler would see an event of kind k.
func (m *Mux) Handles(k Kind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.catchAll) > 0 || len(m.handlers[k]) > 0
}

// Dispatch calls every handler registered for the event's kind, then the
// catch-all handlers.
func (m *Mux) Dispatch(ctx context.Context, ev Event) {
	m.mu.RLock()
	typed := append(([]func(context.Context, Event))(nil), m.handlers[ev.Kind]...)
	all := append(([]func(context.Context, Event))(nil), m.catchAll...)
	m.mu.RUnlock()

	for _, fn := range typed {
		fn(ctx, ev)
	}
	for _, fn := range all {
		fn(ctx, ev)
	}
}
