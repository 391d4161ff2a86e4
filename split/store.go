package split

import (
	"context"
	"time"

	"github.com/xraph/tablebill/types"
)

type Store interface {
	// CreateSplitPayments inserts the entries of one table in a single
	// step. When the entries open a session (pending equal-shares or
	// user-items) and the table already has one open, nothing is written
	// and the store returns tablebill.ErrSplitActive.
	CreateSplitPayments(ctx context.Context, entries []*SplitPayment) error
	ListSplitPayments(ctx context.Context, tableID string, opts ListOpts) ([]*SplitPayment, error)

	// MarkSplitPaid flips the participant's open pending entry of the given
	// mode to paid, recording the amount. It reports false when no pending
	// entry matched, so a repeated call is a no-op.
	MarkSplitPaid(ctx context.Context, tableID, participantKey string, mode Mode, amount types.Money, paidAt time.Time) (bool, error)

	// CancelSplitPayments closes the pending entries of the open session.
	// Paid entries stay open so their money still counts.
	CancelSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error)

	// SettleSplitPayments closes every open entry at the table.
	SettleSplitPayments(ctx context.Context, tableID string, at time.Time) (int64, error)
}
