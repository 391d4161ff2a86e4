// Package plugin provides an extensible plugin system for tablebill.
// Plugins can hook into billing events to extend functionality: realtime
// broadcast, audit trails and metrics are all plugins.
package plugin

import (
	"context"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *tablebill.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnDishCreated is called after a dish is added, with the table summary
// that includes it.
type OnDishCreated interface {
	Plugin
	OnDishCreated(ctx context.Context, d *dish.DishOrder, s summary.TableSummary) error
}

// OnDishesPaid is called when dishes flip to paid. ids holds only the
// dishes that changed in this call.
type OnDishesPaid interface {
	Plugin
	OnDishesPaid(ctx context.Context, tableID string, ids []id.DishOrderID, s summary.TableSummary) error
}

// ──────────────────────────────────────────────────
// Split hooks
// ──────────────────────────────────────────────────

// OnSplitStarted is called when a split session opens.
type OnSplitStarted interface {
	Plugin
	OnSplitStarted(ctx context.Context, tableID string, mode split.Mode, entries []*split.SplitPayment) error
}

// OnSplitUpdated is called when split entries change status.
type OnSplitUpdated interface {
	Plugin
	OnSplitUpdated(ctx context.Context, tableID string, entries []*split.SplitPayment) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called once the critical path of a payment commits.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, r *payment.Receipt) error
}

// OnTransactionRecorded is called after the audit transaction is written.
type OnTransactionRecorded interface {
	Plugin
	OnTransactionRecorded(ctx context.Context, tx *payment.Transaction) error
}

// OnTransactionFailed is called when the audit transaction could not be
// written. The payment itself stands.
type OnTransactionFailed interface {
	Plugin
	OnTransactionFailed(ctx context.Context, tableID string, err error) error
}

// ──────────────────────────────────────────────────
// Gateway hooks
// ──────────────────────────────────────────────────

// OnIntentCreated is called when a checkout persists a new intent.
type OnIntentCreated interface {
	Plugin
	OnIntentCreated(ctx context.Context, in *payment.Intent) error
}

// OnIntentExpired is called for each intent removed by the sweeper.
type OnIntentExpired interface {
	Plugin
	OnIntentExpired(ctx context.Context, in *payment.Intent) error
}

// OnGatewayFailed is called when a charge attempt fails or errors.
type OnGatewayFailed interface {
	Plugin
	OnGatewayFailed(ctx context.Context, in *payment.Intent, err error) error
}
