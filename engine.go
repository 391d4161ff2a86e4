package tablebill

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tablebill/commission"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/plugin"
	"github.com/xraph/tablebill/store"
)

// Engine is the table-billing engine.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	calculator *commission.Calculator
	gateway    gateway.Gateway
	now        func() time.Time

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool

	// Configuration
	intentTTL     time.Duration
	sweepInterval time.Duration
	recordTimeout time.Duration
	migrate       bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		calculator:    commission.Default,
		now:           time.Now,
		stopChan:      make(chan struct{}),
		intentTTL:     payment.DefaultIntentTTL,
		sweepInterval: time.Minute,
		recordTimeout: 10 * time.Second,
		migrate:       true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithGateway sets the payment gateway used by Checkout.
func WithGateway(g gateway.Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithCalculator replaces the default commission tables.
func WithCalculator(c *commission.Calculator) Option {
	return func(e *Engine) { e.calculator = c }
}

// WithIntentTTL sets how long a pending payment intent stays valid.
func WithIntentTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.intentTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired intents are purged.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepInterval = d
		}
	}
}

// WithRecordTimeout bounds the background write of a transaction record.
func WithRecordTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.recordTimeout = d
		}
	}
}

// WithMigrate controls whether Start runs store migrations.
func WithMigrate(enabled bool) Option {
	return func(e *Engine) { e.migrate = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Calculator returns the commission calculator in use.
func (e *Engine) Calculator() *commission.Calculator { return e.calculator }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start runs migrations, initializes plugins and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.intentSweepWorker()

	e.logger.Info("tablebill started",
		"intent_ttl", e.intentTTL,
		"sweep_interval", e.sweepInterval,
		"record_timeout", e.recordTimeout,
		"gateway", e.gateway != nil,
	)

	return nil
}

// Stop drains background work, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// goBackground runs fn on a tracked goroutine so Stop can drain it. After
// Stop, fn runs inline.
func (e *Engine) goBackground(fn func()) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		fn()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// ──────────────────────────────────────────────────
// Intent sweeper
// ──────────────────────────────────────────────────

func (e *Engine) intentSweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.SweepIntents(context.Background())
		}
	}
}

// SweepIntents purges every expired intent now and returns how many were
// removed.
func (e *Engine) SweepIntents(ctx context.Context) int {
	start := e.now()

	expired, err := e.store.PurgeExpiredIntents(ctx, start)
	if err != nil {
		e.logger.Error("failed to purge expired intents", "error", err)
		return 0
	}

	for _, in := range expired {
		e.plugins.EmitIntentExpired(ctx, in)
	}

	if len(expired) > 0 {
		e.logger.Debug("purged expired intents",
			"count", len(expired),
			"elapsed_ms", e.now().Sub(start).Milliseconds(),
		)
	}
	return len(expired)
}
