// Package amqpbridge fans table events out across tablebill instances
// through a RabbitMQ topic exchange. Every instance publishes its local
// events and consumes everyone else's on a private queue.
package amqpbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/tablebill/realtime"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "tablebill.events"

// Receiver takes inbound events. *realtime.Hub implements it.
type Receiver interface {
	Receive(ev realtime.Event)
}

var _ realtime.Bridge = (*Bridge)(nil)

// Bridge implements realtime.Bridge on RabbitMQ.
type Bridge struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	acks <-chan amqp.Confirmation
	mu   sync.Mutex // serializes publishes while waiting for confirms

	exchange string
	logger   *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithExchange(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.exchange = name
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Dial connects to url, declares the exchange and enables publisher
// confirms on the publishing channel.
func Dial(url string, opts ...Option) (*Bridge, error) {
	b := &Bridge{exchange: DefaultExchange, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpbridge: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpbridge: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqpbridge: declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqpbridge: enable confirms: %w", err)
	}

	b.conn = conn
	b.pub = ch
	b.acks = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return b, nil
}

// Send publishes ev and waits for the broker to confirm it.
func (b *Bridge) Send(ctx context.Context, ev realtime.Event) error {
	body, err := realtime.Encode(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pub.PublishWithContext(ctx, b.exchange, RoutingKey(ev.TableID), false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		AppId:        ev.Origin,
		MessageId:    ev.ID.String(),
		Type:         string(ev.Kind),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("amqpbridge: publish: %w", err)
	}

	select {
	case conf, ok := <-b.acks:
		if !ok {
			return errors.New("amqpbridge: channel closed while waiting for confirm")
		}
		if !conf.Ack {
			return errors.New("amqpbridge: publish nacked by broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events from the other instances until ctx is done or the
// connection drops. Messages whose AppId equals origin came from this
// instance and are skipped before decoding.
func (b *Bridge) Run(ctx context.Context, origin string, local Receiver) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqpbridge: open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("amqpbridge: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "table.#", b.exchange, false, nil); err != nil {
		return fmt.Errorf("amqpbridge: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpbridge: consume: %w", err)
	}

	b.logger.Info("amqp bridge consuming", "exchange", b.exchange, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqpbridge: delivery channel closed")
			}
			if d.AppId != "" && d.AppId == origin {
				continue
			}
			ev, err := realtime.Decode(d.Body)
			if err != nil {
				b.logger.Warn("amqp bridge dropped malformed event",
					"message_id", d.MessageId,
					"error", err,
				)
				continue
			}
			local.Receive(ev)
		}
	}
}

// Ping reports whether the connection is still open.
func (b *Bridge) Ping() error {
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("amqpbridge: connection is closed")
	}
	return nil
}

func (b *Bridge) Close() error {
	if b.pub != nil {
		_ = b.pub.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// RoutingKey is the topic key for a table. Dots in the table id are
// replaced so they cannot add topic levels.
func RoutingKey(tableID string) string {
	return "table." + strings.ReplaceAll(tableID, ".", "_")
}
