package extension

import "time"

// Config holds the tablebill extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tablebill" or "tablebill" keys).
type Config struct {
	// DisableRoutes skips building the HTTP API.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix the API is mounted under (default: "/tablebill").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// JWTSecret verifies bearer tokens on the API. Empty accepts guests only.
	JWTSecret string `json:"-" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// AllowedOrigins restricts CORS and websocket origins.
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// IntentTTL is how long a pending payment intent stays valid (default: 15m).
	IntentTTL time.Duration `json:"intent_ttl" mapstructure:"intent_ttl" yaml:"intent_ttl"`

	// IntentSweepInterval is how often expired intents are purged (default: 1m).
	IntentSweepInterval time.Duration `json:"intent_sweep_interval" mapstructure:"intent_sweep_interval" yaml:"intent_sweep_interval"`

	// RecordTimeout bounds the background write of a transaction record
	// (default: 10s).
	RecordTimeout time.Duration `json:"record_timeout" mapstructure:"record_timeout" yaml:"record_timeout"`

	// RealtimeBuffer is the per-subscriber event queue size (default: 64).
	RealtimeBuffer int `json:"realtime_buffer" mapstructure:"realtime_buffer" yaml:"realtime_buffer"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:            "/tablebill",
		IntentTTL:           15 * time.Minute,
		IntentSweepInterval: time.Minute,
		RecordTimeout:       10 * time.Second,
		RealtimeBuffer:      64,
	}
}
