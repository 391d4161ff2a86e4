// Command tablebilld serves the table-billing API with an in-memory store,
// the sandbox gateway and optional cross-instance realtime fan-out.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/api"
	audithook "github.com/xraph/tablebill/audit_hook"
	"github.com/xraph/tablebill/config"
	"github.com/xraph/tablebill/gateway"
	"github.com/xraph/tablebill/observability"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/realtime/amqpbridge"
	"github.com/xraph/tablebill/realtime/pgnotify"
	"github.com/xraph/tablebill/store/memory"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tablebilld exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hub := realtime.NewHub(
		realtime.WithLogger(logger),
		realtime.WithBufferSize(cfg.Realtime.Buffer),
		realtime.WithOrigin(cfg.Realtime.Origin),
	)
	defer hub.Close()

	closeBridge, err := startBridge(ctx, cfg.Realtime, hub, logger)
	if err != nil {
		return err
	}
	defer closeBridge()

	opts := []tablebill.Option{
		tablebill.WithLogger(logger),
		tablebill.WithGateway(gateway.NewSandbox(gateway.WithRedirectBase(cfg.Gateway.RedirectBase))),
		tablebill.WithIntentTTL(cfg.Billing.IntentTTL),
		tablebill.WithSweepInterval(cfg.Billing.SweepInterval),
		tablebill.WithRecordTimeout(cfg.Billing.RecordTimeout),
		tablebill.WithPlugin(realtime.NewBroadcaster(hub, logger)),
		tablebill.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
	}

	apiOpts := []api.Option{
		api.WithHub(hub),
		api.WithLogger(logger),
		api.WithJWTSecret(cfg.Auth.JWTSecret),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts = append(opts, tablebill.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)),
		))
		apiOpts = append(apiOpts, api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	engine := tablebill.New(memory.New(), opts...)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(engine, apiOpts...).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "bridge", cfg.Realtime.Bridge)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startBridge connects the configured bridge and starts relaying inbound
// events to the hub. The returned func releases it.
func startBridge(ctx context.Context, cfg config.RealtimeConfig, hub *realtime.Hub, logger *slog.Logger) (func(), error) {
	relay := func(run func(context.Context, string, *realtime.Hub) error) {
		go func() {
			if err := run(ctx, hub.Origin(), hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bridge stopped", "error", err)
			}
		}()
	}

	switch cfg.Bridge {
	case config.BridgeAMQP:
		b, err := amqpbridge.Dial(cfg.AMQPURL,
			amqpbridge.WithExchange(cfg.Exchange),
			amqpbridge.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		hub.SetBridge(b)
		relay(func(ctx context.Context, origin string, h *realtime.Hub) error { return b.Run(ctx, origin, h) })
		return func() { _ = b.Close() }, nil

	case config.BridgePostgres:
		b, err := pgnotify.Connect(ctx, cfg.PostgresDSN,
			pgnotify.WithChannel(cfg.PGChannel),
			pgnotify.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		hub.SetBridge(b)
		relay(func(ctx context.Context, origin string, h *realtime.Hub) error { return b.Run(ctx, origin, h) })
		return b.Close, nil

	default:
		return func() {}, nil
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// auditLog writes audit events to the structured log.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", ev.Action),
			slog.String("resource", ev.Resource),
			slog.String("resource_id", ev.ResourceID),
			slog.String("outcome", ev.Outcome),
			slog.String("severity", ev.Severity),
			slog.Any("metadata", ev.Metadata),
		)
		return nil
	})
}
