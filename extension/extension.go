// Package extension provides the Forge extension adapter for tablebill.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management. The engine, the realtime hub and, unless routes are disabled,
// the HTTP API server are provided to the container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tablebill" or
// "tablebill" keys.
package extension

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/api"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/store"
	"github.com/xraph/tablebill/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tablebill"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Restaurant table billing with split payments"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tablebill as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tablebill.Engine
	hub        *realtime.Hub
	server     *api.Server
	store      store.Store
	bridge     realtime.Bridge
	engineOpts []tablebill.Option
}

// New creates a new tablebill Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tablebill.Engine { return e.engine }

// Hub returns the realtime hub. This is nil until Register is called.
func (e *Extension) Hub() *realtime.Hub { return e.hub }

// Handler returns the API mounted under the configured base path, or nil
// when routes are disabled.
func (e *Extension) Handler() http.Handler {
	if e.server == nil {
		return nil
	}
	prefix := strings.TrimRight(e.config.BasePath, "/")
	if prefix == "" {
		return e.server.Handler()
	}
	return http.StripPrefix(prefix, e.server.Handler())
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.build()

	if err := vessel.Provide(fapp.Container(), func() (*tablebill.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	if err := vessel.Provide(fapp.Container(), func() (*realtime.Hub, error) {
		return e.hub, nil
	}); err != nil {
		return err
	}
	if e.server == nil {
		return nil
	}
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// build wires the hub, engine and API from the resolved config.
func (e *Extension) build() {
	hubOpts := []realtime.HubOption{realtime.WithBufferSize(e.config.RealtimeBuffer)}
	if e.bridge != nil {
		hubOpts = append(hubOpts, realtime.WithBridge(e.bridge))
	}
	e.hub = realtime.NewHub(hubOpts...)

	opts := append(e.buildEngineOpts(), tablebill.WithPlugin(realtime.NewBroadcaster(e.hub, nil)))
	e.engine = tablebill.New(e.store, opts...)

	if !e.config.DisableRoutes {
		e.server = api.New(e.engine,
			api.WithHub(e.hub),
			api.WithJWTSecret(e.config.JWTSecret),
			api.WithAllowedOrigins(e.config.AllowedOrigins...),
			api.WithLogger(e.engine.Logger()),
		)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tablebill: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.hub != nil {
		errs = append(errs, e.hub.Close())
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tablebill: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs tablebill.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []tablebill.Option {
	opts := make([]tablebill.Option, 0, len(e.engineOpts)+4)

	opts = append(opts,
		tablebill.WithIntentTTL(e.config.IntentTTL),
		tablebill.WithSweepInterval(e.config.IntentSweepInterval),
		tablebill.WithRecordTimeout(e.config.RecordTimeout),
		tablebill.WithMigrate(!e.config.DisableMigrate),
	)

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tablebill: configuration is required but not found in config files; " +
				"ensure 'extensions.tablebill' or 'tablebill' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tablebill: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("intent_ttl", e.config.IntentTTL),
		forge.F("intent_sweep_interval", e.config.IntentSweepInterval),
		forge.F("record_timeout", e.config.RecordTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tablebill", "tablebill"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tablebill: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tablebill: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.IntentTTL == 0 {
		cfg.IntentTTL = defaults.IntentTTL
	}
	if cfg.IntentSweepInterval == 0 {
		cfg.IntentSweepInterval = defaults.IntentSweepInterval
	}
	if cfg.RecordTimeout == 0 {
		cfg.RecordTimeout = defaults.RecordTimeout
	}
	if cfg.RealtimeBuffer == 0 {
		cfg.RealtimeBuffer = defaults.RealtimeBuffer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.JWTSecret == "" {
		yamlConfig.JWTSecret = programmaticConfig.JWTSecret
	}
	if len(yamlConfig.AllowedOrigins) == 0 {
		yamlConfig.AllowedOrigins = programmaticConfig.AllowedOrigins
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.IntentTTL == 0 {
		yamlConfig.IntentTTL = programmaticConfig.IntentTTL
	}
	if yamlConfig.IntentSweepInterval == 0 {
		yamlConfig.IntentSweepInterval = programmaticConfig.IntentSweepInterval
	}
	if yamlConfig.RecordTimeout == 0 {
		yamlConfig.RecordTimeout = programmaticConfig.RecordTimeout
	}
	if yamlConfig.RealtimeBuffer == 0 {
		yamlConfig.RealtimeBuffer = programmaticConfig.RealtimeBuffer
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
