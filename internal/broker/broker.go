// Package broker exposes the RabbitMQ exchange through package-level free
// functions. Plugins never hold a connection; they import this package and
// call Publish or Subscribe, which are no-ops until Connect has succeeded.
// It also mirrors plugin lifecycle events onto the exchange so sibling
// deployments can observe them.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/forgekit/forgeflow/internal/config"
	"github.com/forgekit/forgeflow/internal/events"
)

// Handler consumes one message delivered to a subscription.
type Handler func(ctx context.Context, routingKey string, body []byte)

type connection struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

var (
	mu     sync.RWMutex
	active *connection
)

// Connect dials the broker, declares the durable topic exchange named in cfg
// and installs the connection as the package-wide default. If logger is nil,
// slog.Default is used.
func Connect(cfg config.BrokerConfig, logger *slog.Logger) error {
	if cfg.URL == "" {
		return errors.New("broker.url is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if active != nil {
		ch.Close()
		conn.Close()
		return errors.New("broker already connected")
	}
	active = &connection{conn: conn, ch: ch, exchange: cfg.Exchange, log: logger.With("component", "broker")}
	return nil
}

// Enabled reports whether Connect has installed a connection.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return active != nil
}

// Check probes the installed connection. It returns nil when no broker is
// configured; an unconfigured broker is absent, not broken.
func Check() error {
	mu.RLock()
	defer mu.RUnlock()
	if active == nil {
		return nil
	}
	if active.conn.IsClosed() {
		return errors.New("broker connection closed")
	}
	return nil
}

// Publish sends a JSON-encoded payload under the given routing key. Without
// a connected broker the message is dropped and nil returned, so call sites
// need no configuration checks.
func Publish(ctx context.Context, routingKey string, payload any) error {
	mu.RLock()
	c := active
	mu.RUnlock()
	if c == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.ch.PublishWithContext(ctx, c.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Subscribe binds an exclusive queue to the exchange with the given routing
// pattern (e.g. "plugin.#") and dispatches matching messages to handler on a
// background goroutine until the connection closes. Without a connected
// broker it is a no-op.
func Subscribe(pattern string, handler Handler) error {
	mu.RLock()
	c := active
	mu.RUnlock()
	if c == nil {
		return nil
	}

	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, pattern, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", pattern, c.exchange, err)
	}
	msgs, err := c.ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	go func() {
		for msg := range msgs {
			handler(context.Background(), msg.RoutingKey, msg.Body)
			_ = msg.Ack(false)
		}
		c.log.Info("subscription closed", "pattern", pattern)
	}()
	return nil
}

// BindBus forwards the plugin lifecycle catalogue from the in-process bus to
// the exchange. Routing keys reuse the event names with ':' replaced by '.'
// so consumers can bind patterns like "plugin.#".
func BindBus(bus *events.Bus) {
	if bus == nil {
		return
	}
	forward := func(name string) {
		key := RoutingKey(name)
		bus.On(name, func(payload any) {
			if err := Publish(context.Background(), key, payload); err != nil {
				mu.RLock()
				c := active
				mu.RUnlock()
				if c != nil {
					c.log.Warn("event publish failed", "event", name, "error", err)
				}
			}
		})
	}
	forward(events.EventPluginLoaded)
	forward(events.EventPluginEnabled)
	forward(events.EventPluginDisabled)
	forward(events.EventPluginUnloaded)
}

// Close tears down the package-wide connection. Safe to call when nothing is
// connected.
func Close() error {
	mu.Lock()
	c := active
	active = nil
	mu.Unlock()
	if c == nil {
		return nil
	}
	_ = c.ch.Close()
	return c.conn.Close()
}

// RoutingKey converts a bus event name to its exchange routing key, mapping
// the ':' namespace separator to the AMQP '.' convention.
func RoutingKey(event string) string {
	out := []byte(event)
	for i, c := range out {
		if c == ':' {
			out[i] = '.'
		}
	}
	return string(out)
}
