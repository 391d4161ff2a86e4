package extension

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/tablebill/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{IntentTTL: time.Minute})
	if cfg.IntentTTL != time.Minute {
		t.Errorf("IntentTTL = %v, want programmatic 1m", cfg.IntentTTL)
	}
	def := DefaultConfig()
	if cfg.BasePath != def.BasePath {
		t.Errorf("BasePath = %q, want %q", cfg.BasePath, def.BasePath)
	}
	if cfg.IntentSweepInterval != def.IntentSweepInterval {
		t.Errorf("IntentSweepInterval = %v, want %v", cfg.IntentSweepInterval, def.IntentSweepInterval)
	}
	if cfg.RealtimeBuffer != def.RealtimeBuffer {
		t.Errorf("RealtimeBuffer = %d, want %d", cfg.RealtimeBuffer, def.RealtimeBuffer)
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name string
		yaml Config
		prog Config
		want func(Config) bool
	}{
		{
			name: "yaml wins on durations",
			yaml: Config{IntentTTL: 5 * time.Minute},
			prog: Config{IntentTTL: time.Minute},
			want: func(c Config) bool { return c.IntentTTL == 5*time.Minute },
		},
		{
			name: "programmatic fills gaps",
			yaml: Config{},
			prog: Config{RecordTimeout: 3 * time.Second, JWTSecret: "s"},
			want: func(c Config) bool { return c.RecordTimeout == 3*time.Second && c.JWTSecret == "s" },
		},
		{
			name: "programmatic flags override",
			yaml: Config{},
			prog: Config{DisableRoutes: true, DisableMigrate: true},
			want: func(c Config) bool { return c.DisableRoutes && c.DisableMigrate },
		},
		{
			name: "yaml base path kept",
			yaml: Config{BasePath: "/bill"},
			prog: Config{BasePath: "/other"},
			want: func(c Config) bool { return c.BasePath == "/bill" },
		},
		{
			name: "defaults after merge",
			yaml: Config{},
			prog: Config{},
			want: func(c Config) bool { return c.BasePath == "/tablebill" && c.IntentTTL == 15*time.Minute },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.yaml, tt.prog)
			if !tt.want(got) {
				t.Errorf("unexpected merge result: %+v", got)
			}
		})
	}
}

func TestBuildMountsAPIUnderBasePath(t *testing.T) {
	e := New(WithStore(memory.New()), WithBasePath("/bill"))
	if e.Handler() != nil {
		t.Fatal("Handler should be nil before build")
	}
	e.config = mergeWithDefaults(e.config)
	e.build()
	t.Cleanup(func() { _ = e.hub.Close() })

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bill/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /bill/healthz = %d, want 200", rec.Code)
	}

	e = New(WithStore(memory.New()), WithDisableRoutes())
	e.config = mergeWithDefaults(e.config)
	e.build()
	t.Cleanup(func() { _ = e.hub.Close() })
	if e.Handler() != nil {
		t.Error("Handler should be nil when routes are disabled")
	}
}
