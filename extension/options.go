package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/plugin"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/store"
	"github.com/xraph/tablebill/store/mongo"
	"github.com/xraph/tablebill/store/postgres"
	"github.com/xraph/tablebill/store/sqlite"
)

// Option configures the tablebill Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engine with a grove database on the pg driver.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) { e.store = postgres.New(db) }
}

// WithSQLite backs the engine with a grove database on the sqlite driver.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) { e.store = sqlite.New(db) }
}

// WithMongo backs the engine with a grove database on the mongo driver.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) { e.store = mongo.New(db) }
}

// WithEngineOption passes a tablebill.Option through to the underlying engine.
func WithEngineOption(opt tablebill.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tablebill plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tablebill.WithPlugin(p))
	}
}

// WithGateway sets the payment gateway used by checkout.
func WithGateway(g gateway.Gateway) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tablebill.WithGateway(g))
	}
}

// WithBridge fans realtime events out to other instances.
func WithBridge(b realtime.Bridge) Option {
	return func(e *Extension) { e.bridge = b }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips building the HTTP API.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for tablebill routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithJWTSecret sets the key used to verify API bearer tokens.
func WithJWTSecret(secret string) Option {
	return func(e *Extension) { e.config.JWTSecret = secret }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithIntentTTL sets how long a pending payment intent stays valid.
func WithIntentTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.IntentTTL = d }
}

// WithIntentSweepInterval sets how often expired intents are purged.
func WithIntentSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.IntentSweepInterval = d }
}

// WithRecordTimeout bounds the background write of a transaction record.
func WithRecordTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.RecordTimeout = d }
}
