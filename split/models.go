// Package split holds split-payment sessions and the strategy resolver that
// answers "how much does this diner owe right now".
package split

import (
	"time"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/types"
)

// Mode is the kind of split entry.
type Mode string

const (
	// ModeEqualShares entries each owe remaining/participants.
	ModeEqualShares Mode = "equal-shares"
	// ModeUserItems entries each owe their own unpaid dishes.
	ModeUserItems Mode = "user-items"
	// ModeAmount entries are free-form credits from choose-amount payments.
	ModeAmount Mode = "amount"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// SplitPayment is one participant's share of a table's bill. Status flips
// from pending to paid exactly once. Settled entries belong to a finished
// session and no longer count toward the table's paid amount.
type SplitPayment struct {
	types.Entity
	ID             id.SplitPaymentID `json:"id"`
	TableID        string            `json:"table_id"`
	ParticipantKey string            `json:"participant_key"`
	Mode           Mode              `json:"mode"`
	Status         Status            `json:"status"`
	ShareAmount    types.Money       `json:"share_amount"`
	PaidAmount     types.Money       `json:"paid_amount"`
	Settled        bool              `json:"settled"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	SettledAt      *time.Time        `json:"settled_at,omitempty"`
}

func (s *SplitPayment) IsPending() bool { return s.Status == StatusPending && !s.Settled }

type ListOpts struct {
	OpenOnly bool
	Mode     Mode
}

// ActiveSession reports the mode of the open split session, if any. A session
// is active while at least one equal-shares or user-items entry is pending.
func ActiveSession(entries []*SplitPayment) (Mode, bool) {
	for _, e := range entries {
		if e.IsPending() && (e.Mode == ModeEqualShares || e.Mode == ModeUserItems) {
			return e.Mode, true
		}
	}
	return "", false
}

// Pending returns the open, pending entries of the given mode.
func Pending(entries []*SplitPayment, mode Mode) []*SplitPayment {
	out := make([]*SplitPayment, 0, len(entries))
	for _, e := range entries {
		if e.IsPending() && e.Mode == mode {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the open entry for a participant in the given mode.
func Find(entries []*SplitPayment, participantKey string, mode Mode) *SplitPayment {
	for _, e := range entries {
		if !e.Settled && e.Mode == mode && e.ParticipantKey == participantKey {
			return e
		}
	}
	return nil
}

// Credits sums the money collected by open, paid entries. That money has
// reached the restaurant but is not yet attributed to specific dishes.
func Credits(currency string, entries []*SplitPayment) types.Money {
	total := types.Zero(currency)
	for _, e := range entries {
		if e.Settled || e.Status != StatusPaid {
			continue
		}
		total = total.Add(e.PaidAmount)
	}
	return total
}
