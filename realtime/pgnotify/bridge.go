// Package pgnotify fans table events out across tablebill instances with
// PostgreSQL LISTEN/NOTIFY. It needs no broker beyond the database the
// grove stores already use.
package pgnotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/tablebill/realtime"
)

// DefaultChannel is the NOTIFY channel name.
const DefaultChannel = "tablebill_events"

// MaxPayload is the largest NOTIFY payload PostgreSQL accepts by default,
// less one byte for the terminator.
const MaxPayload = 7999

// Receiver takes inbound events. *realtime.Hub implements it.
type Receiver interface {
	Receive(ev realtime.Event)
}

var _ realtime.Bridge = (*Bridge)(nil)

// Bridge implements realtime.Bridge on a pgx pool.
type Bridge struct {
	pool    *pgxpool.Pool
	channel string
	retry   time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithChannel(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.channel = name
		}
	}
}

// WithRetry sets the pause before re-listening after a dropped connection.
func WithRetry(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.retry = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

func New(pool *pgxpool.Pool, opts ...Option) *Bridge {
	b := &Bridge{
		pool:    pool,
		channel: DefaultChannel,
		retry:   2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect builds a pool from a DSN with the health-check settings the
// bridge expects from a long-lived listener.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Bridge, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgnotify: parse config: %w", err)
	}
	cfg.HealthCheckPeriod = 15 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgnotify: connect: %w", err)
	}
	return New(pool, opts...), nil
}

// Send notifies every listener. Events too large for a NOTIFY payload are
// replaced by a full-refresh for the same table.
func (b *Bridge) Send(ctx context.Context, ev realtime.Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, payload); err != nil {
		return fmt.Errorf("pgnotify: notify: %w", err)
	}
	return nil
}

// Payload encodes ev for NOTIFY, shrinking it to a full-refresh when it
// does not fit.
func Payload(ev realtime.Event) (string, error) {
	data, err := realtime.Encode(ev)
	if err != nil {
		return "", err
	}
	if len(data) <= MaxPayload {
		return string(data), nil
	}

	refresh := realtime.NewEvent(ev.TableID, realtime.FullRefresh{Reason: "payload too large"})
	refresh.Origin = ev.Origin
	data, err = realtime.Encode(refresh)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Run listens until ctx is done, re-acquiring a connection after failures.
// Notifications from origin are skipped.
func (b *Bridge) Run(ctx context.Context, origin string, local Receiver) error {
	for {
		err := b.listen(ctx, origin, local)
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warn("pg notify listener stopped, retrying",
			"channel", b.channel,
			"retry_in", b.retry,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.retry):
		}
	}
}

func (b *Bridge) listen(ctx context.Context, origin string, local Receiver) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pgnotify: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("pgnotify: listen: %w", err)
	}
	b.logger.Info("pg notify listening", "channel", b.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := realtime.Decode([]byte(n.Payload))
		if err != nil {
			b.logger.Warn("pg notify dropped malformed event", "error", err)
			continue
		}
		if ev.Origin == origin {
			continue
		}
		local.Receive(ev)
	}
}

func (b *Bridge) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *Bridge) Close() {
	b.pool.Close()
}
