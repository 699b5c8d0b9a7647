// Package amqp carries the monthly-data change feed between the API server
// and its consumers (state-store feeds, the export worker).
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout   = 5 * time.Second
	consumerPrefetch = 8
)

// Client owns one connection and one channel bound to the change-feed
// exchange. A single routing key is used, so the direct exchange behaves as a
// named durable queue shared by all consumers.
type Client struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	queue    string
}

func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Client{conn: conn, ch: ch, exchange: exchange, queue: queue}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return c, nil
}

func (c *Client) declareTopology() error {
	durable, autoDelete, internal, exclusive, noWait := true, false, false, false, false

	if err := c.ch.ExchangeDeclare(c.exchange, "direct", durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("exchange %q: %w", c.exchange, err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, durable, autoDelete, exclusive, noWait, nil); err != nil {
		return fmt.Errorf("queue %q: %w", c.queue, err)
	}
	// The queue name doubles as the routing key.
	if err := c.ch.QueueBind(c.queue, c.queue, c.exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind %q to %q: %w", c.queue, c.exchange, err)
	}
	if err := c.ch.Qos(consumerPrefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}

// PublishMonthlyDataChanged emits a change notification for one document.
// The message carries identifiers only; consumers read the document itself
// from storage.
func (c *Client) PublishMonthlyDataChanged(ctx context.Context, budgetID, month string, version int64) error {
	body, err := NewMonthlyDataChangedMessage(budgetID, month, version).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := c.ch.PublishWithContext(ctx, c.exchange, c.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published monthly data change",
		"budget_id", budgetID,
		"month", month,
		"version", version,
		"exchange", c.exchange)
	return nil
}

// ConsumeMonthlyDataChanged delivers change messages to handler until the
// context is cancelled. Handler errors requeue the delivery; malformed
// payloads are dropped.
func (c *Client) ConsumeMonthlyDataChanged(ctx context.Context, handler func(*MonthlyDataChangedMessage) error) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming monthly data changes", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, d, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, d amqp091.Delivery, handler func(*MonthlyDataChangedMessage) error) {
	msg, err := MonthlyDataChangedMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping malformed change message", "error", err)
		d.Nack(false, false)
		return
	}

	if err := handler(msg); err != nil {
		slog.ErrorContext(ctx, "Requeueing change message after handler failure",
			"error", err,
			"budget_id", msg.BudgetID,
			"month", msg.Month,
			"version", msg.Version)
		d.Nack(false, true)
		return
	}

	d.Ack(false)
}

func (c *Client) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
