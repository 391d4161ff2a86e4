// Package observability provides a metrics extension for tablebill that
// records billing event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/plugin"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnDishCreated         = (*MetricsExtension)(nil)
	_ plugin.OnDishesPaid          = (*MetricsExtension)(nil)
	_ plugin.OnSplitStarted        = (*MetricsExtension)(nil)
	_ plugin.OnSplitUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRecorded = (*MetricsExtension)(nil)
	_ plugin.OnTransactionFailed   = (*MetricsExtension)(nil)
	_ plugin.OnIntentCreated       = (*MetricsExtension)(nil)
	_ plugin.OnIntentExpired       = (*MetricsExtension)(nil)
	_ plugin.OnGatewayFailed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records billing metrics.
// Register it as an engine plugin to track them automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Dish metrics
	DishCreated Counter
	DishesPaid  Counter
	DishPrice   Histogram

	// Split metrics
	SplitStarted      Counter
	SplitParticipants Histogram
	SplitUpdated      Counter

	// Payment metrics
	PaymentRecorded     Counter
	PaymentAmount       Histogram
	TablesSettled       Counter
	TransactionRecorded Counter
	TransactionFailed   Counter

	// Gateway metrics
	IntentCreated Counter
	IntentExpired Counter
	GatewayFailed Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		DishCreated: factory.Counter("tablebill.dish.created"),
		DishesPaid:  factory.Counter("tablebill.dish.paid"),
		DishPrice:   factory.Histogram("tablebill.dish.price_minor"),

		SplitStarted:      factory.Counter("tablebill.split.started"),
		SplitParticipants: factory.Histogram("tablebill.split.participants"),
		SplitUpdated:      factory.Counter("tablebill.split.updated"),

		PaymentRecorded:     factory.Counter("tablebill.payment.recorded"),
		PaymentAmount:       factory.Histogram("tablebill.payment.charged_minor"),
		TablesSettled:       factory.Counter("tablebill.table.settled"),
		TransactionRecorded: factory.Counter("tablebill.transaction.recorded"),
		TransactionFailed:   factory.Counter("tablebill.transaction.failed"),

		IntentCreated: factory.Counter("tablebill.intent.created"),
		IntentExpired: factory.Counter("tablebill.intent.expired"),
		GatewayFailed: factory.Counter("tablebill.gateway.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Dish hooks
// ──────────────────────────────────────────────────

// OnDishCreated implements plugin.OnDishCreated.
func (m *MetricsExtension) OnDishCreated(_ context.Context, d *dish.DishOrder, _ summary.TableSummary) error {
	m.DishCreated.Inc()
	m.DishPrice.Observe(float64(d.TotalPrice.Amount))
	return nil
}

// OnDishesPaid implements plugin.OnDishesPaid.
func (m *MetricsExtension) OnDishesPaid(_ context.Context, _ string, ids []id.DishOrderID, _ summary.TableSummary) error {
	m.DishesPaid.Add(float64(len(ids)))
	return nil
}

// ──────────────────────────────────────────────────
// Split hooks
// ──────────────────────────────────────────────────

// OnSplitStarted implements plugin.OnSplitStarted.
func (m *MetricsExtension) OnSplitStarted(_ context.Context, _ string, _ split.Mode, entries []*split.SplitPayment) error {
	m.SplitStarted.Inc()
	m.SplitParticipants.Observe(float64(len(entries)))
	return nil
}

// OnSplitUpdated implements plugin.OnSplitUpdated.
func (m *MetricsExtension) OnSplitUpdated(_ context.Context, _ string, _ []*split.SplitPayment) error {
	m.SplitUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, r *payment.Receipt) error {
	m.PaymentRecorded.Inc()
	m.PaymentAmount.Observe(float64(r.Breakdown.TotalAmountCharged.Amount))
	if r.Settled {
		m.TablesSettled.Inc()
	}
	return nil
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (m *MetricsExtension) OnTransactionRecorded(_ context.Context, _ *payment.Transaction) error {
	m.TransactionRecorded.Inc()
	return nil
}

// OnTransactionFailed implements plugin.OnTransactionFailed.
func (m *MetricsExtension) OnTransactionFailed(_ context.Context, _ string, _ error) error {
	m.TransactionFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Gateway hooks
// ──────────────────────────────────────────────────

// OnIntentCreated implements plugin.OnIntentCreated.
func (m *MetricsExtension) OnIntentCreated(_ context.Context, _ *payment.Intent) error {
	m.IntentCreated.Inc()
	return nil
}

// OnIntentExpired implements plugin.OnIntentExpired.
func (m *MetricsExtension) OnIntentExpired(_ context.Context, _ *payment.Intent) error {
	m.IntentExpired.Inc()
	return nil
}

// OnGatewayFailed implements plugin.OnGatewayFailed.
func (m *MetricsExtension) OnGatewayFailed(_ context.Context, _ *payment.Intent, _ error) error {
	m.GatewayFailed.Inc()
	return nil
}
