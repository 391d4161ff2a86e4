package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tablebill/id"
)

// DefaultBufferSize is the per-subscription queue size.
const DefaultBufferSize = 64

// Bridge forwards locally published events to other instances. Inbound
// events from the bridge are handed to Hub.Receive.
type Bridge interface {
	Send(ctx context.Context, ev Event) error
}

// Hub is the in-process Channel. Rooms are created on first subscribe and
// dropped when the last subscriber leaves.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool

	origin string
	buffer int
	bridge Bridge
	logger *slog.Logger
	now    func() time.Time
}

type room struct {
	subs     map[string]*Subscription
	presence map[string]*presenceEntry
}

type presenceEntry struct {
	user ActiveUser
	refs int
}

var _ Channel = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// WithBufferSize sets the default per-subscription queue size.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithBridge forwards every locally published event through b.
func WithBridge(b Bridge) HubOption {
	return func(h *Hub) { h.bridge = b }
}

// WithOrigin names this instance. Events coming back through a bridge with
// the same origin are dropped.
func WithOrigin(origin string) HubOption {
	return func(h *Hub) {
		if origin != "" {
			h.origin = origin
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:  make(map[string]*room),
		origin: id.NewEventID().String(),
		buffer: DefaultBufferSize,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Origin returns the instance name stamped on local events.
func (h *Hub) Origin() string { return h.origin }

// SetBridge attaches a bridge after construction. Bridges usually need the
// hub to deliver inbound events, so they are built second.
func (h *Hub) SetBridge(b Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// Subscribe joins tableID's room. Events are delivered to mux on the
// subscription's own goroutine until Unsubscribe.
func (h *Hub) Subscribe(tableID string, mux *Mux, opts ...SubscribeOption) (*Subscription, error) {
	cfg := subscribeConfig{buffer: h.buffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if mux == nil {
		mux = NewMux()
	}

	sub := &Subscription{
		id:      id.NewEventID().String(),
		tableID: tableID,
		mux:     mux,
		queue:   make(chan Event, cfg.buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		onClose: h.remove,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	r := h.rooms[tableID]
	if r == nil {
		r = &room{subs: make(map[string]*Subscription), presence: make(map[string]*presenceEntry)}
		h.rooms[tableID] = r
	}
	r.subs[sub.id] = sub

	var joined *ActiveUser
	if cfg.user != nil && cfg.user.ParticipantKey != "" {
		entry := r.presence[cfg.user.ParticipantKey]
		if entry == nil {
			u := *cfg.user
			u.JoinedAt = h.now().UTC()
			entry = &presenceEntry{user: u}
			r.presence[u.ParticipantKey] = entry
			joined = &u
		}
		entry.refs++
		sub.user = &entry.user
	}
	h.mu.Unlock()

	go sub.run()

	h.logger.Debug("realtime subscribed", "table_id", tableID, "subscription", sub.id)

	if joined != nil {
		_ = h.Publish(context.Background(), tableID, NewEvent(tableID, UserJoined{User: *joined})) //nolint:errcheck // presence is advisory
	}
	return sub, nil
}

// remove is the subscription's close callback.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	r := h.rooms[sub.tableID]
	if r == nil {
		h.mu.Unlock()
		return
	}
	delete(r.subs, sub.id)

	left := ""
	if sub.user != nil {
		if entry := r.presence[sub.user.ParticipantKey]; entry != nil {
			entry.refs--
			if entry.refs <= 0 {
				delete(r.presence, sub.user.ParticipantKey)
				left = sub.user.ParticipantKey
			}
		}
	}
	if len(r.subs) == 0 {
		delete(h.rooms, sub.tableID)
	}
	closed := h.closed
	h.mu.Unlock()

	h.logger.Debug("realtime unsubscribed", "table_id", sub.tableID, "subscription", sub.id)

	if left != "" && !closed {
		_ = h.Publish(context.Background(), sub.tableID, NewEvent(sub.tableID, UserLeft{ParticipantKey: left})) //nolint:errcheck // presence is advisory
	}
}

// Publish delivers ev to every subscriber of tableID and forwards it through
// the bridge. Events without an origin are stamped with this hub's.
func (h *Hub) Publish(ctx context.Context, tableID string, ev Event) error {
	if ev.ID.IsNil() {
		ev.ID = id.NewEventID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	if ev.Kind == "" && ev.Payload != nil {
		ev.Kind = ev.Payload.Kind()
	}
	if ev.Origin == "" {
		ev.Origin = h.origin
	}
	ev.TableID = tableID

	bridge, err := h.deliver(ev)
	if err != nil {
		return err
	}

	if bridge != nil && ev.Origin == h.origin {
		if err := bridge.Send(ctx, ev); err != nil {
			h.logger.Warn("realtime bridge send failed",
				"table_id", tableID,
				"kind", ev.Kind,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// Receive delivers an event that arrived through a bridge to local
// subscribers only. Events this hub published itself are ignored.
func (h *Hub) Receive(ev Event) {
	if ev.Origin == h.origin {
		return
	}
	_, _ = h.deliver(ev) //nolint:errcheck // closed hubs drop inbound events
}

func (h *Hub) deliver(ev Event) (Bridge, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, ErrClosed
	}
	if r := h.rooms[ev.TableID]; r != nil {
		for _, sub := range r.subs {
			sub.enqueue(ev)
		}
	}
	return h.bridge, nil
}

// Presence lists the participants in tableID's room, earliest first.
func (h *Hub) Presence(tableID string) []ActiveUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := h.rooms[tableID]
	if r == nil {
		return []ActiveUser{}
	}
	users := make([]ActiveUser, 0, len(r.presence))
	for _, entry := range r.presence {
		users = append(users, entry.user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].ParticipantKey < users[j].ParticipantKey
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})
	return users
}

// Subscribers returns the number of live subscriptions on tableID.
func (h *Hub) Subscribers(tableID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r := h.rooms[tableID]; r != nil {
		return len(r.subs)
	}
	return 0
}

// Close unsubscribes everyone. Further publishes return ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*Subscription, 0)
	for _, r := range h.rooms {
		for _, sub := range r.subs {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
