package types

import "time"

// Entity carries the timestamps shared by every stored record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// TableSession identifies the table and the diner an operation acts for. It
// is passed explicitly into every billing call.
type TableSession struct {
	TableID        string `json:"table_id"`
	RestaurantID   string `json:"restaurant_id"`
	BranchID       string `json:"branch_id,omitempty"`
	ParticipantKey string `json:"participant_key,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// CurrencyOrDefault returns the session currency, falling back to
// DefaultCurrency.
func (s TableSession) CurrencyOrDefault() string {
	if s.Currency == "" {
		return DefaultCurrency
	}
	return s.Currency
}
