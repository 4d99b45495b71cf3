// Package messaging defines the job and result messages exchanged over the
// broker and the pull-based interfaces workers and the coordinator consume
// them through.
package messaging

import (
	"context"

	"github.com/KrzysztofW02/ZTP/shared/rabbitmq"
)

const (
	ContentTypeText = "text/plain"
	ContentTypeJSON = "application/json"
)

// ErrClosed is returned by Receive when the underlying consumer stops.
var ErrClosed = rabbitmq.ErrConsumerClosed

// Delivery is one received message. Exactly one of Ack or Nack should be
// called.
type Delivery interface {
	Body() []byte
	ContentType() string
	Redelivered() bool
	Ack() error
	Nack(requeue bool) error
}

// Receiver blocks until the next delivery is available.
type Receiver interface {
	Receive(ctx context.Context) (Delivery, error)
}

// Publisher sends a message to an exchange. Exchange "" with a queue name as
// routing key addresses the queue directly.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, contentType string) error
}
