package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/KrzysztofW02/ZTP/shared/rabbitmq"
)

// AMQPReceiver adapts a RabbitMQ consumer to Receiver.
type AMQPReceiver struct {
	consumer *rabbitmq.Consumer
}

func NewAMQPReceiver(c *rabbitmq.Consumer) *AMQPReceiver {
	return &AMQPReceiver{consumer: c}
}

func (r *AMQPReceiver) Receive(ctx context.Context) (Delivery, error) {
	d, err := r.consumer.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return amqpDelivery{d: d}, nil
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Body() []byte        { return a.d.Body }
func (a amqpDelivery) ContentType() string { return a.d.ContentType }
func (a amqpDelivery) Redelivered() bool   { return a.d.Redelivered }
func (a amqpDelivery) Ack() error          { return a.d.Ack(false) }

func (a amqpDelivery) Nack(requeue bool) error {
	return a.d.Nack(false, requeue)
}
