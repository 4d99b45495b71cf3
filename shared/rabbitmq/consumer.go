package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConsumerClosed is returned by Receive once the broker stops delivering,
// e.g. because the channel or connection closed.
var ErrConsumerClosed = errors.New("rabbitmq: consumer closed")

// Consumer pulls deliveries one at a time from a queue.
type Consumer struct {
	queue      string
	deliveries <-chan amqp.Delivery
}

// Consume starts a manual-ack consumer on queue. The channel QoS is set to
// the configured prefetch count (default 1). Serial consumers such as the
// worker must keep it at 1 so the broker hands out one unacknowledged
// message at a time.
func (c *Client) Consume(queue, consumerTag string) (*Consumer, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	prefetch := c.config.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}

	if err := c.channel.Qos(
		prefetch, // prefetch count
		0,        // prefetch size
		false,    // global
	); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.channel.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queue),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch", prefetch),
	)

	return NewConsumer(queue, messages), nil
}

// NewConsumer wraps a delivery channel.
func NewConsumer(queue string, deliveries <-chan amqp.Delivery) *Consumer {
	return &Consumer{queue: queue, deliveries: deliveries}
}

// Queue returns the queue name.
func (c *Consumer) Queue() string {
	return c.queue
}

// Receive blocks until a delivery arrives, ctx is done or the delivery
// channel closes.
func (c *Consumer) Receive(ctx context.Context) (amqp.Delivery, error) {
	select {
	case <-ctx.Done():
		return amqp.Delivery{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return amqp.Delivery{}, ErrConsumerClosed
		}
		return d, nil
	}
}
