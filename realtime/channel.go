package realtime

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when publishing to or subscribing on a closed hub.
	ErrClosed = errors.New("realtime: channel closed")
	// ErrNotInRoom is returned by Session.Reconnect before any Enter.
	ErrNotInRoom = errors.New("realtime: session is not in a table room")
)

// Channel is the publish/subscribe contract for table rooms.
type Channel interface {
	Subscribe(tableID string, mux *Mux, opts ...SubscribeOption) (*Subscription, error)
	Publish(ctx context.Context, tableID string, ev Event) error
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	user   *ActiveUser
	buffer int
}

// WithPresence announces the subscriber in the room's presence list until it
// unsubscribes.
func WithPresence(participantKey, displayName string) SubscribeOption {
	return func(c *subscribeConfig) {
		c.user = &ActiveUser{ParticipantKey: participantKey, DisplayName: displayName}
	}
}

// WithBuffer overrides the hub's per-subscription queue size.
func WithBuffer(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Subscription is one consumer of a table room. Each subscription has its
// own queue and delivery goroutine, so a slow consumer never blocks the
// publisher or its neighbours.
type Subscription struct {
	id      string
	tableID string
	mux     *Mux
	user    *ActiveUser
	queue   chan Event
	done    chan struct{}
	stopped chan struct{}

	mu        sync.Mutex
	overflows int

	closeOnce sync.Once
	onClose   func(*Subscription)
}

func (s *Subscription) TableID() string { return s.tableID }

// Overflows is how many times the queue was coalesced into a full-refresh.
func (s *Subscription) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}

// Unsubscribe leaves the room and waits for the delivery goroutine to exit.
// Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.done)
	})
	<-s.stopped
}

// enqueue never blocks. A full queue is drained and replaced by a single
// full-refresh: the consumer re-fetches everything instead of replaying
// what it missed.
func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.queue <- ev:
		return
	default:
	}

	for drained := false; !drained; {
		select {
		case <-s.queue:
		default:
			drained = true
		}
	}
	s.overflows++
	s.queue <- NewEvent(s.tableID, FullRefresh{Reason: "overflow"})
}

func (s *Subscription) run() {
	defer close(s.stopped)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			s.mux.Dispatch(ctx, ev)
		}
	}
}
