package realtime

import (
	"context"
	"sync"
)

// Session is a client's view of the table room it is looking at. It holds
// at most one subscription: entering a new table leaves the old room first,
// and entering the same table again does nothing.
//
// Session methods must not be called from inside a Mux handler of the same
// session.
type Session struct {
	ch   Channel
	mux  *Mux
	opts []SubscribeOption

	mu      sync.Mutex
	tableID string
	sub     *Subscription
}

func NewSession(ch Channel, mux *Mux, opts ...SubscribeOption) *Session {
	if mux == nil {
		mux = NewMux()
	}
	return &Session{ch: ch, mux: mux, opts: opts}
}

// TableID returns the current room, or "" outside any room.
func (s *Session) TableID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableID
}

// Enter subscribes to tableID's room.
func (s *Session) Enter(_ context.Context, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil && s.tableID == tableID {
		return nil
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}

	sub, err := s.ch.Subscribe(tableID, s.mux, s.opts...)
	if err != nil {
		s.tableID = ""
		return err
	}
	s.tableID = tableID
	s.sub = sub
	return nil
}

// Reconnect re-subscribes to the current room after a transport drop and
// hands the mux a local full-refresh, since anything published while
// disconnected is lost.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tableID == "" {
		return ErrNotInRoom
	}
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}

	sub, err := s.ch.Subscribe(s.tableID, s.mux, s.opts...)
	if err != nil {
		return err
	}
	s.sub = sub

	s.mux.Dispatch(ctx, NewEvent(s.tableID, FullRefresh{Reason: "reconnect"}))
	return nil
}

// Leave unsubscribes from the current room.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	s.tableID = ""
}
