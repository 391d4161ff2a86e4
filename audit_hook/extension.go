// Package audithook bridges tablebill billing events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
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
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnDishCreated         = (*Extension)(nil)
	_ plugin.OnDishesPaid          = (*Extension)(nil)
	_ plugin.OnSplitStarted        = (*Extension)(nil)
	_ plugin.OnSplitUpdated        = (*Extension)(nil)
	_ plugin.OnPaymentRecorded     = (*Extension)(nil)
	_ plugin.OnTransactionRecorded = (*Extension)(nil)
	_ plugin.OnTransactionFailed   = (*Extension)(nil)
	_ plugin.OnIntentCreated       = (*Extension)(nil)
	_ plugin.OnIntentExpired       = (*Extension)(nil)
	_ plugin.OnGatewayFailed       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges billing events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Dish hooks
// ──────────────────────────────────────────────────

// OnDishCreated implements plugin.OnDishCreated.
func (e *Extension) OnDishCreated(ctx context.Context, d *dish.DishOrder, s summary.TableSummary) error {
	return e.record(ctx, ActionDishCreated, SeverityInfo, OutcomeSuccess,
		ResourceDish, d.ID.String(), CategoryOrdering, nil,
		"table_id", d.TableID,
		"guest_name", d.GuestName,
		"item", d.Item,
		"total_price", d.TotalPrice.String(),
		"table_total", s.TotalAmount.String(),
	)
}

// OnDishesPaid implements plugin.OnDishesPaid.
func (e *Extension) OnDishesPaid(ctx context.Context, tableID string, ids []id.DishOrderID, s summary.TableSummary) error {
	return e.record(ctx, ActionDishesPaid, SeverityInfo, OutcomeSuccess,
		ResourceDish, tableID, CategoryOrdering, nil,
		"table_id", tableID,
		"dish_ids", idStrings(ids),
		"remaining", s.RemainingAmount.String(),
	)
}

// ──────────────────────────────────────────────────
// Split hooks
// ──────────────────────────────────────────────────

// OnSplitStarted implements plugin.OnSplitStarted.
func (e *Extension) OnSplitStarted(ctx context.Context, tableID string, mode split.Mode, entries []*split.SplitPayment) error {
	return e.record(ctx, ActionSplitStarted, SeverityInfo, OutcomeSuccess,
		ResourceSplit, tableID, CategoryBilling, nil,
		"table_id", tableID,
		"mode", string(mode),
		"participants", len(entries),
	)
}

// OnSplitUpdated implements plugin.OnSplitUpdated.
func (e *Extension) OnSplitUpdated(ctx context.Context, tableID string, entries []*split.SplitPayment) error {
	pending := 0
	for _, entry := range entries {
		if entry.IsPending() {
			pending++
		}
	}
	return e.record(ctx, ActionSplitUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSplit, tableID, CategoryBilling, nil,
		"table_id", tableID,
		"entries", len(entries),
		"pending", pending,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, r *payment.Receipt) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, r.TransactionID.String(), CategoryPayment, nil,
		"table_id", r.Summary.TableID,
		"strategy", string(r.Strategy),
		"base_amount", r.BaseAmount.String(),
		"total_charged", r.Breakdown.TotalAmountCharged.String(),
		"settled", r.Settled,
	)
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (e *Extension) OnTransactionRecorded(ctx context.Context, tx *payment.Transaction) error {
	return e.record(ctx, ActionTransactionRecorded, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, tx.ID.String(), CategoryPayment, nil,
		"table_id", tx.TableID,
		"strategy", string(tx.Strategy),
		"tier", tx.Tier,
		"total_charged", tx.TotalAmountCharged.String(),
	)
}

// OnTransactionFailed implements plugin.OnTransactionFailed. The payment
// stands, so this is a warning rather than a failure of the charge.
func (e *Extension) OnTransactionFailed(ctx context.Context, tableID string, err error) error {
	return e.record(ctx, ActionTransactionFailed, SeverityWarning, OutcomeFailure,
		ResourceTransaction, tableID, CategoryPayment, err,
		"table_id", tableID,
	)
}

// ──────────────────────────────────────────────────
// Gateway hooks
// ──────────────────────────────────────────────────

// OnIntentCreated implements plugin.OnIntentCreated.
func (e *Extension) OnIntentCreated(ctx context.Context, in *payment.Intent) error {
	return e.record(ctx, ActionIntentCreated, SeverityInfo, OutcomeSuccess,
		ResourceIntent, in.ID.String(), CategoryGateway, nil,
		"table_id", in.TableID,
		"strategy", string(in.Strategy),
		"charge_amount", in.ChargeAmount.String(),
		"months", in.Months,
	)
}

// OnIntentExpired implements plugin.OnIntentExpired.
func (e *Extension) OnIntentExpired(ctx context.Context, in *payment.Intent) error {
	return e.record(ctx, ActionIntentExpired, SeverityWarning, OutcomeFailure,
		ResourceIntent, in.ID.String(), CategoryGateway, nil,
		"table_id", in.TableID,
		"attempts", in.Attempts,
	)
}

// OnGatewayFailed implements plugin.OnGatewayFailed.
func (e *Extension) OnGatewayFailed(ctx context.Context, in *payment.Intent, err error) error {
	return e.record(ctx, ActionGatewayFailed, SeverityError, OutcomeFailure,
		ResourceIntent, in.ID.String(), CategoryGateway, err,
		"table_id", in.TableID,
		"attempt", in.Attempts,
	)
}

// ──────────────────────────────────────────────────
// Internal
// ──────────────────────────────────────────────────

func idStrings(ids []id.DishOrderID) []string {
	out := make([]string, len(ids))
	for i, dishID := range ids {
		out[i] = dishID.String()
	}
	return out
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
