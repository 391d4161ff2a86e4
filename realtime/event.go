// Package realtime fans table changes out to every client viewing the same
// table. Events are triggers to re-fetch, never state: delivery is
// at-least-once and unordered across kinds.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
	"github.com/xraph/tablebill/types"
)

// Kind identifies an event type.
type Kind string

const (
	KindDishCreated       Kind = "dish-created"
	KindDishStatusChanged Kind = "dish-status-changed"
	KindDishPaid          Kind = "dish-paid"
	KindSummaryUpdate     Kind = "summary-update"
	KindUserJoined        Kind = "user-joined"
	KindUserLeft          Kind = "user-left"
	KindSplitUpdate       Kind = "split-update"
	// KindFullRefresh tells clients to re-fetch everything. It is sent when
	// incremental events were dropped or may have been missed.
	KindFullRefresh Kind = "full-refresh"
)

// Payload is the typed body of an event.
type Payload interface {
	Kind() Kind
}

// Event is one message published to a table room.
type Event struct {
	ID        id.EventID `json:"id"`
	Kind      Kind       `json:"kind"`
	TableID   string     `json:"table_id"`
	Origin    string     `json:"origin,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Payload   Payload    `json:"payload"`
}

// NewEvent stamps a payload for tableID.
func NewEvent(tableID string, p Payload) Event {
	return Event{
		ID:        id.NewEventID(),
		Kind:      p.Kind(),
		TableID:   tableID,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}
}

// ActiveUser is a participant currently present in a table room.
type ActiveUser struct {
	ParticipantKey string    `json:"participant_key"`
	DisplayName    string    `json:"display_name,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
}

// ──────────────────────────────────────────────────
// Payloads
// ──────────────────────────────────────────────────

type DishCreated struct {
	DishID     id.DishOrderID `json:"dish_id"`
	GuestName  string         `json:"guest_name"`
	Item       string         `json:"item"`
	Quantity   int            `json:"quantity"`
	TotalPrice types.Money    `json:"total_price"`
}

type DishStatusChanged struct {
	DishID id.DishOrderID     `json:"dish_id"`
	Status dish.PaymentStatus `json:"status"`
}

type DishPaid struct {
	DishIDs         []id.DishOrderID `json:"dish_ids"`
	RemainingAmount types.Money      `json:"remaining_amount"`
}

type SummaryUpdate struct {
	Summary summary.TableSummary `json:"summary"`
}

type UserJoined struct {
	User ActiveUser `json:"user"`
}

type UserLeft struct {
	ParticipantKey string `json:"participant_key"`
}

type SplitUpdate struct {
	Mode    split.Mode            `json:"mode,omitempty"`
	Entries []*split.SplitPayment `json:"entries"`
}

type FullRefresh struct {
	Reason string `json:"reason,omitempty"`
}

func (DishCreated) Kind() Kind       { return KindDishCreated }
func (DishStatusChanged) Kind() Kind { return KindDishStatusChanged }
func (DishPaid) Kind() Kind          { return KindDishPaid }
func (SummaryUpdate) Kind() Kind     { return KindSummaryUpdate }
func (UserJoined) Kind() Kind        { return KindUserJoined }
func (UserLeft) Kind() Kind          { return KindUserLeft }
func (SplitUpdate) Kind() Kind       { return KindSplitUpdate }
func (FullRefresh) Kind() Kind       { return KindFullRefresh }

// ──────────────────────────────────────────────────
// Wire format
// ──────────────────────────────────────────────────

type wireEvent struct {
	ID        id.EventID      `json:"id"`
	Kind      Kind            `json:"kind"`
	TableID   string          `json:"table_id"`
	Origin    string          `json:"origin,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode returns the JSON wire form used by bridges and sockets.
func Encode(ev Event) ([]byte, error) {
	var raw json.RawMessage
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("realtime: encode %s payload: %w", ev.Kind, err)
		}
		raw = b
	}
	return json.Marshal(wireEvent{
		ID:        ev.ID,
		Kind:      ev.Kind,
		TableID:   ev.TableID,
		Origin:    ev.Origin,
		Timestamp: ev.Timestamp,
		Payload:   raw,
	})
}

// Decode parses the wire form back into a typed event.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	p, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        w.ID,
		Kind:      w.Kind,
		TableID:   w.TableID,
		Origin:    w.Origin,
		Timestamp: w.Timestamp,
		Payload:   p,
	}, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindDishCreated:
		return unmarshalPayload[DishCreated](raw)
	case KindDishStatusChanged:
		return unmarshalPayload[DishStatusChanged](raw)
	case KindDishPaid:
		return unmarshalPayload[DishPaid](raw)
	case KindSummaryUpdate:
		return unmarshalPayload[SummaryUpdate](raw)
	case KindUserJoined:
		return unmarshalPayload[UserJoined](raw)
	case KindUserLeft:
		return unmarshalPayload[UserLeft](raw)
	case KindSplitUpdate:
		return unmarshalPayload[SplitUpdate](raw)
	case KindFullRefresh:
		return unmarshalPayload[FullRefresh](raw)
	default:
		return nil, fmt.Errorf("realtime: unknown event kind %q", kind)
	}
}

func unmarshalPayload[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("realtime: decode %s payload: %w", p.Kind(), err)
	}
	return p, nil
}
