package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 15*time.Minute, cfg.Billing.IntentTTL)
	assert.Equal(t, BridgeNone, cfg.Realtime.Bridge)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "tablebill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
billing:
  intent_ttl: 5m
realtime:
  bridge: amqp
`), 0o600))

	t.Setenv("TABLEBILL_BILLING_SWEEP_INTERVAL", "30s")
	t.Setenv("TABLEBILL_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Billing.IntentTTL)
	assert.Equal(t, 30*time.Second, cfg.Billing.SweepInterval)
	assert.Equal(t, BridgeAMQP, cfg.Realtime.Bridge)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TABLEBILL_AUTH_JWT_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TABLEBILL_AUTH_JWT_SECRET") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty bridge is none", Config{Log: LogConfig{Format: "text"}}, false},
		{"postgres needs dsn", Config{Log: LogConfig{Format: "json"}, Realtime: RealtimeConfig{Bridge: "postgres"}}, true},
		{"amqp with url", Config{Log: LogConfig{Format: "json"}, Realtime: RealtimeConfig{Bridge: "AMQP", AMQPURL: "amqp://x"}}, false},
		{"unknown bridge", Config{Log: LogConfig{Format: "json"}, Realtime: RealtimeConfig{Bridge: "kafka"}}, true},
		{"unknown format", Config{Log: LogConfig{Format: "xml"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
