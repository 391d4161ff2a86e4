package tablebill

import (
	"context"
	"strings"

	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/types"
)

// StartSplit opens a split session. Equal-shares entries each owe the
// remaining bill divided by the number of participants; user-items entries
// owe their own unpaid dishes. With no participants given, every guest with
// unpaid dishes takes part.
func (e *Engine) StartSplit(ctx context.Context, sess TableSession, mode split.Mode, participants []string) ([]*split.SplitPayment, error) {
	if mode != split.ModeEqualShares && mode != split.ModeUserItems {
		return nil, types.Invalid("mode", "cannot start a %q session", mode)
	}

	snap, err := e.snapshot(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(snap.dishes) == 0 {
		return nil, ErrTableNotFound
	}
	if _, ok := split.ActiveSession(snap.splits); ok {
		return nil, ErrSplitActive
	}
	if !snap.summary.RemainingAmount.IsPositive() {
		return nil, ErrNothingToPay
	}

	keys := uniqueKeys(participants)
	if len(keys) == 0 {
		keys = snap.summary.Participants
	}
	if len(keys) == 0 {
		return nil, types.Invalid("participants", "no participants to split between")
	}

	entries, err := e.openSplit(ctx, snap, sess.TableID, mode, keys)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitSplitStarted(ctx, sess.TableID, mode, entries)
	e.logger.Debug("split session started",
		"table_id", sess.TableID,
		"mode", mode,
		"participants", len(entries),
	)
	return entries, nil
}

// ListSplits returns the table's split entries.
func (e *Engine) ListSplits(ctx context.Context, tableID string, opts split.ListOpts) ([]*split.SplitPayment, error) {
	return e.store.ListSplitPayments(ctx, tableID, opts)
}

// CancelSplit closes the open session. Shares already paid keep counting
// toward the table's paid amount.
func (e *Engine) CancelSplit(ctx context.Context, tableID string) (int64, error) {
	n, err := e.store.CancelSplitPayments(ctx, tableID, e.now().UTC())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrSplitNotFound
	}

	if entries, err := e.store.ListSplitPayments(ctx, tableID, split.ListOpts{}); err == nil {
		e.plugins.EmitSplitUpdated(ctx, tableID, entries)
	}
	return n, nil
}

// openSplit creates one pending entry per participant.
func (e *Engine) openSplit(ctx context.Context, snap *tableSnapshot, tableID string, mode split.Mode, keys []string) ([]*split.SplitPayment, error) {
	remaining := snap.summary.RemainingAmount
	share := remaining.DivideRound(int64(len(keys)))

	entries := make([]*split.SplitPayment, 0, len(keys))
	for _, key := range keys {
		amount := share
		if mode == split.ModeUserItems {
			amount = types.Zero(remaining.Currency)
			for _, d := range snap.dishes {
				if !d.IsPaid() && d.GuestName == key {
					amount = amount.Add(d.TotalPrice)
				}
			}
		}
		entries = append(entries, &split.SplitPayment{
			Entity:         types.NewEntity(),
			ID:             id.NewSplitPaymentID(),
			TableID:        tableID,
			ParticipantKey: key,
			Mode:           mode,
			Status:         split.StatusPending,
			ShareAmount:    amount,
			PaidAmount:     types.Zero(remaining.Currency),
		})
	}

	if err := e.store.CreateSplitPayments(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
