// Package amqp publishes committed entries to a RabbitMQ exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

const defaultRoutingKey = "waf.logs"

func init() {
	sink.Register("amqp", fromConfig)
}

// fromConfig dials the broker at cfg.Endpoint. Extra keys: exchange,
// routing_key, route_by_class ("true" appends the attack class to the key).
func fromConfig(cfg sink.Config) (sink.Sink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("amqp: endpoint is required")
	}
	key := cfg.Extra["routing_key"]
	if key == "" {
		key = defaultRoutingKey
	}
	return Dial(cfg.Endpoint, cfg.Extra["exchange"], key, cfg.Extra["route_by_class"] == "true")
}

// publisher is the subset of *amqp.Channel used by Output.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Output publishes each entry as a persistent JSON message.
type Output struct {
	mu           sync.Mutex // amqp channels are not safe for concurrent publishing
	ch           publisher
	conn         io.Closer
	exchange     string
	key          string
	routeByClass bool
}

// Dial connects to the broker and declares the target. With an exchange a
// durable topic exchange is declared; without one the message goes through
// the default exchange to a durable queue named after the routing key.
func Dial(url, exchange, key string, routeByClass bool) (*Output, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: channel: %w", err)
	}

	if exchange != "" {
		err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	} else {
		_, err = ch.QueueDeclare(key, true, false, false, false, nil)
	}
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare: %w", err)
	}

	slog.Info("amqp sink connected", "exchange", exchange, "routing_key", key)
	return newOutput(ch, conn, exchange, key, routeByClass), nil
}

func newOutput(ch publisher, conn io.Closer, exchange, key string, routeByClass bool) *Output {
	return &Output{ch: ch, conn: conn, exchange: exchange, key: key, routeByClass: routeByClass}
}

// Write publishes the entry.
func (o *Output) Write(_ context.Context, entry model.Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("amqp: marshal: %w", err)
	}

	key := o.key
	if o.routeByClass {
		key += "." + string(entry.Detection.AttackClass)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    entry.Request.Timestamp,
		Body:         body,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ch.Publish(o.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	if err := o.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if o.conn != nil {
		if err := o.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
