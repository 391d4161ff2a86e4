package realtime

import (
	"context"
	"log/slog"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/plugin"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Broadcaster)(nil)
	_ plugin.OnDishCreated     = (*Broadcaster)(nil)
	_ plugin.OnDishesPaid      = (*Broadcaster)(nil)
	_ plugin.OnSplitStarted    = (*Broadcaster)(nil)
	_ plugin.OnSplitUpdated    = (*Broadcaster)(nil)
	_ plugin.OnPaymentRecorded = (*Broadcaster)(nil)
)

// Broadcaster is the engine plugin that publishes ledger changes to table
// rooms.
type Broadcaster struct {
	ch     Channel
	logger *slog.Logger
}

func NewBroadcaster(ch Channel, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{ch: ch, logger: logger}
}

func (b *Broadcaster) Name() string { return "realtime-broadcaster" }

func (b *Broadcaster) OnDishCreated(ctx context.Context, d *dish.DishOrder, s summary.TableSummary) error {
	if err := b.publish(ctx, d.TableID, DishCreated{
		DishID:     d.ID,
		GuestName:  d.GuestName,
		Item:       d.Item,
		Quantity:   d.Quantity,
		TotalPrice: d.TotalPrice,
	}); err != nil {
		return err
	}
	return b.publish(ctx, d.TableID, SummaryUpdate{Summary: s})
}

func (b *Broadcaster) OnDishesPaid(ctx context.Context, tableID string, ids []id.DishOrderID, s summary.TableSummary) error {
	for _, dishID := range ids {
		if err := b.publish(ctx, tableID, DishStatusChanged{DishID: dishID, Status: dish.StatusPaid}); err != nil {
			return err
		}
	}
	return b.publish(ctx, tableID, DishPaid{DishIDs: ids, RemainingAmount: s.RemainingAmount})
}

func (b *Broadcaster) OnSplitStarted(ctx context.Context, tableID string, mode split.Mode, entries []*split.SplitPayment) error {
	return b.publish(ctx, tableID, SplitUpdate{Mode: mode, Entries: entries})
}

func (b *Broadcaster) OnSplitUpdated(ctx context.Context, tableID string, entries []*split.SplitPayment) error {
	return b.publish(ctx, tableID, SplitUpdate{Entries: entries})
}

func (b *Broadcaster) OnPaymentRecorded(ctx context.Context, r *payment.Receipt) error {
	return b.publish(ctx, r.Summary.TableID, SummaryUpdate{Summary: r.Summary})
}

func (b *Broadcaster) publish(ctx context.Context, tableID string, p Payload) error {
	if err := b.ch.Publish(ctx, tableID, NewEvent(tableID, p)); err != nil {
		b.logger.Warn("realtime publish failed",
			"table_id", tableID,
			"kind", p.Kind(),
			"error", err,
		)
		return err
	}
	return nil
}
