package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/id"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
	"github.com/xraph/tablebill/summary"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onDishCreated         []OnDishCreated
	onDishesPaid          []OnDishesPaid
	onSplitStarted        []OnSplitStarted
	onSplitUpdated        []OnSplitUpdated
	onPaymentRecorded     []OnPaymentRecorded
	onTransactionRecorded []OnTransactionRecorded
	onTransactionFailed   []OnTransactionFailed
	onIntentCreated       []OnIntentCreated
	onIntentExpired       []OnIntentExpired
	onGatewayFailed       []OnGatewayFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnDishCreated); ok {
		r.onDishCreated = append(r.onDishCreated, v)
	}
	if v, ok := p.(OnDishesPaid); ok {
		r.onDishesPaid = append(r.onDishesPaid, v)
	}
	if v, ok := p.(OnSplitStarted); ok {
		r.onSplitStarted = append(r.onSplitStarted, v)
	}
	if v, ok := p.(OnSplitUpdated); ok {
		r.onSplitUpdated = append(r.onSplitUpdated, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}
	if v, ok := p.(OnTransactionRecorded); ok {
		r.onTransactionRecorded = append(r.onTransactionRecorded, v)
	}
	if v, ok := p.(OnTransactionFailed); ok {
		r.onTransactionFailed = append(r.onTransactionFailed, v)
	}
	if v, ok := p.(OnIntentCreated); ok {
		r.onIntentCreated = append(r.onIntentCreated, v)
	}
	if v, ok := p.(OnIntentExpired); ok {
		r.onIntentExpired = append(r.onIntentExpired, v)
	}
	if v, ok := p.(OnGatewayFailed); ok {
		r.onGatewayFailed = append(r.onGatewayFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnDishCreated", reflect.TypeOf((*OnDishCreated)(nil)).Elem()},
	{"OnDishesPaid", reflect.TypeOf((*OnDishesPaid)(nil)).Elem()},
	{"OnSplitStarted", reflect.TypeOf((*OnSplitStarted)(nil)).Elem()},
	{"OnSplitUpdated", reflect.TypeOf((*OnSplitUpdated)(nil)).Elem()},
	{"OnPaymentRecorded", reflect.TypeOf((*OnPaymentRecorded)(nil)).Elem()},
	{"OnTransactionRecorded", reflect.TypeOf((*OnTransactionRecorded)(nil)).Elem()},
	{"OnTransactionFailed", reflect.TypeOf((*OnTransactionFailed)(nil)).Elem()},
	{"OnIntentCreated", reflect.TypeOf((*OnIntentCreated)(nil)).Elem()},
	{"OnIntentExpired", reflect.TypeOf((*OnIntentExpired)(nil)).Elem()},
	{"OnGatewayFailed", reflect.TypeOf((*OnGatewayFailed)(nil)).Elem()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitDishCreated emits a dish created event.
func (r *Registry) EmitDishCreated(ctx context.Context, d *dish.DishOrder, s summary.TableSummary) {
	r.mu.RLock()
	plugins := r.onDishCreated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnDishCreated", plugins, func(p OnDishCreated) error {
		return p.OnDishCreated(ctx, d, s)
	})
}

// EmitDishesPaid emits a dishes paid event.
func (r *Registry) EmitDishesPaid(ctx context.Context, tableID string, ids []id.DishOrderID, s summary.TableSummary) {
	r.mu.RLock()
	plugins := r.onDishesPaid
	r.mu.RUnlock()

	dispatch(ctx, r, "OnDishesPaid", plugins, func(p OnDishesPaid) error {
		return p.OnDishesPaid(ctx, tableID, ids, s)
	})
}

// EmitSplitStarted emits a split started event.
func (r *Registry) EmitSplitStarted(ctx context.Context, tableID string, mode split.Mode, entries []*split.SplitPayment) {
	r.mu.RLock()
	plugins := r.onSplitStarted
	r.mu.RUnlock()

	dispatch(ctx, r, "OnSplitStarted", plugins, func(p OnSplitStarted) error {
		return p.OnSplitStarted(ctx, tableID, mode, entries)
	})
}

// EmitSplitUpdated emits a split updated event.
func (r *Registry) EmitSplitUpdated(ctx context.Context, tableID string, entries []*split.SplitPayment) {
	r.mu.RLock()
	plugins := r.onSplitUpdated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnSplitUpdated", plugins, func(p OnSplitUpdated) error {
		return p.OnSplitUpdated(ctx, tableID, entries)
	})
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, rec *payment.Receipt) {
	r.mu.RLock()
	plugins := r.onPaymentRecorded
	r.mu.RUnlock()

	dispatch(ctx, r, "OnPaymentRecorded", plugins, func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, rec)
	})
}

// EmitTransactionRecorded emits a transaction recorded event.
func (r *Registry) EmitTransactionRecorded(ctx context.Context, tx *payment.Transaction) {
	r.mu.RLock()
	plugins := r.onTransactionRecorded
	r.mu.RUnlock()

	dispatch(ctx, r, "OnTransactionRecorded", plugins, func(p OnTransactionRecorded) error {
		return p.OnTransactionRecorded(ctx, tx)
	})
}

// EmitTransactionFailed emits a transaction failed event.
func (r *Registry) EmitTransactionFailed(ctx context.Context, tableID string, err error) {
	r.mu.RLock()
	plugins := r.onTransactionFailed
	r.mu.RUnlock()

	dispatch(ctx, r, "OnTransactionFailed", plugins, func(p OnTransactionFailed) error {
		return p.OnTransactionFailed(ctx, tableID, err)
	})
}

// EmitIntentCreated emits an intent created event.
func (r *Registry) EmitIntentCreated(ctx context.Context, in *payment.Intent) {
	r.mu.RLock()
	plugins := r.onIntentCreated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnIntentCreated", plugins, func(p OnIntentCreated) error {
		return p.OnIntentCreated(ctx, in)
	})
}

// EmitIntentExpired emits an intent expired event.
func (r *Registry) EmitIntentExpired(ctx context.Context, in *payment.Intent) {
	r.mu.RLock()
	plugins := r.onIntentExpired
	r.mu.RUnlock()

	dispatch(ctx, r, "OnIntentExpired", plugins, func(p OnIntentExpired) error {
		return p.OnIntentExpired(ctx, in)
	})
}

// EmitGatewayFailed emits a gateway failed event.
func (r *Registry) EmitGatewayFailed(ctx context.Context, in *payment.Intent, err error) {
	r.mu.RLock()
	plugins := r.onGatewayFailed
	r.mu.RUnlock()

	dispatch(ctx, r, "OnGatewayFailed", plugins, func(p OnGatewayFailed) error {
		return p.OnGatewayFailed(ctx, in, err)
	})
}

// dispatch calls fn for every plugin in order, logging failures. A failing
// plugin never stops the others.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
