// Package messagingtest provides an in-memory broker with the queue semantics
// the worker and coordinator rely on: manual ack, requeue on nack, fanout
// bindings and redelivery after a lost ack.
package messagingtest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
)

// ErrAckLost is returned by Ack when the broker simulates a dropped
// connection between processing and acknowledgement.
var ErrAckLost = errors.New("messagingtest: connection lost before ack")

// Message is a published message.
type Message struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	ContentType string
}

type queue struct {
	pending []*delivery
	notify  chan struct{}
	closed  bool
}

// Broker is safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	queues    map[string]*queue
	bindings  map[string][]string
	published []Message
	acks      int
	nacks     int
	loseAcks  int

	// PublishErr, when set, fails every Publish.
	PublishErr error
}

func NewBroker() *Broker {
	return &Broker{
		queues:   make(map[string]*queue),
		bindings: make(map[string][]string),
	}
}

func (b *Broker) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{notify: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q
}

// Bind routes messages published to a fanout exchange to each queue.
func (b *Broker) Bind(exchange string, queues ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range queues {
		b.queue(q)
		if !slices.Contains(b.bindings[exchange], q) {
			b.bindings[exchange] = append(b.bindings[exchange], q)
		}
	}
}

// Publish implements messaging.Publisher. Messages to an exchange without
// bindings are dropped, as on a real broker.
func (b *Broker) Publish(_ context.Context, exchange, routingKey string, body []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.PublishErr != nil {
		return b.PublishErr
	}

	msg := Message{Exchange: exchange, RoutingKey: routingKey, Body: slices.Clone(body), ContentType: contentType}
	b.published = append(b.published, msg)

	targets := b.bindings[exchange]
	if exchange == "" {
		targets = []string{routingKey}
	}
	for _, name := range targets {
		b.enqueue(name, &delivery{broker: b, queue: name, msg: msg}, false)
	}
	return nil
}

func (b *Broker) enqueue(name string, d *delivery, front bool) {
	q := b.queue(name)
	if front {
		q.pending = append([]*delivery{d}, q.pending...)
	} else {
		q.pending = append(q.pending, d)
	}
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Receiver returns a consumer on the named queue.
func (b *Broker) Receiver(name string) messaging.Receiver {
	b.mu.Lock()
	b.queue(name)
	b.mu.Unlock()
	return &receiver{broker: b, name: name}
}

// Close makes every blocked and future Receive on the queue fail with
// messaging.ErrClosed once pending messages are drained.
func (b *Broker) Close(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(name)
	if !q.closed {
		q.closed = true
		close(q.notify)
	}
}

// LoseAcks makes the next n acknowledgements fail and requeues their
// messages as redelivered.
func (b *Broker) LoseAcks(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loseAcks = n
}

// Pending returns the unconsumed messages on a queue.
func (b *Broker) Pending(name string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(name)
	out := make([]Message, len(q.pending))
	for i, d := range q.pending {
		out[i] = d.msg
	}
	return out
}

// Published returns every message accepted by Publish.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

func (b *Broker) Acks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks
}

func (b *Broker) Nacks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nacks
}

type receiver struct {
	broker *Broker
	name   string
}

func (r *receiver) Receive(ctx context.Context) (messaging.Delivery, error) {
	for {
		r.broker.mu.Lock()
		q := r.broker.queue(r.name)
		if len(q.pending) > 0 {
			d := q.pending[0]
			q.pending = q.pending[1:]
			r.broker.mu.Unlock()
			return d, nil
		}
		closed, notify := q.closed, q.notify
		r.broker.mu.Unlock()

		if closed {
			return nil, messaging.ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

type delivery struct {
	broker      *Broker
	queue       string
	msg         Message
	redelivered bool
	settled     bool
}

func (d *delivery) Body() []byte        { return d.msg.Body }
func (d *delivery) ContentType() string { return d.msg.ContentType }
func (d *delivery) Redelivered() bool   { return d.redelivered }

func (d *delivery) Ack() error {
	b := d.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.settled {
		return errors.New("messagingtest: delivery already settled")
	}
	d.settled = true

	if b.loseAcks > 0 {
		b.loseAcks--
		b.enqueue(d.queue, &delivery{broker: b, queue: d.queue, msg: d.msg, redelivered: true}, true)
		return ErrAckLost
	}
	b.acks++
	return nil
}

func (d *delivery) Nack(requeue bool) error {
	b := d.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.settled {
		return errors.New("messagingtest: delivery already settled")
	}
	d.settled = true
	b.nacks++

	if requeue {
		b.enqueue(d.queue, &delivery{broker: b, queue: d.queue, msg: d.msg, redelivered: true}, true)
	}
	return nil
}
