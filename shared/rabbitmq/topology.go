package rabbitmq

import (
	"fmt"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the subset of *amqp.Channel needed to declare a topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type Exchange struct {
	Name string
	Kind string
}

type Binding struct {
	Queue    string
	Exchange string
	Key      string
}

// Topology lists durable exchanges, durable queues and the bindings between
// them. Declaring it twice is harmless.
type Topology struct {
	Exchanges  []Exchange
	Queues     []string
	Bindings   []Binding
	DeadLetter bool
}

// TopologyNames configures DefaultTopology.
type TopologyNames struct {
	CPUJobs   string
	GPUJobs   string
	ImageJobs string
	Results   string
	// BroadcastTo lists queues that also receive every message published
	// to the ImageJobs exchange.
	BroadcastTo []string
	DeadLetter  bool
}

// DeadLetterQueue names the queue that parks jobs which exhausted their
// attempts on queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead"
}

// DefaultTopology returns one fanout exchange per job queue, bound to the
// queue of the same name, plus the results queue on the default exchange.
func DefaultTopology(names TopologyNames) Topology {
	t := Topology{DeadLetter: names.DeadLetter}

	for _, q := range []string{names.CPUJobs, names.GPUJobs, names.ImageJobs} {
		if q == "" {
			continue
		}
		t.Exchanges = append(t.Exchanges, Exchange{Name: q, Kind: amqp.ExchangeFanout})
		t = t.WithQueue(q)
		t.Bindings = append(t.Bindings, Binding{Queue: q, Exchange: q})
	}

	for _, q := range names.BroadcastTo {
		if q == "" || q == names.ImageJobs {
			continue
		}
		t = t.WithQueue(q)
		t.Bindings = append(t.Bindings, Binding{Queue: q, Exchange: names.ImageJobs})
	}

	if names.Results != "" && !slices.Contains(t.Queues, names.Results) {
		t.Queues = append(t.Queues, names.Results)
	}

	return t
}

// WithQueue returns t with queue declared, along with its dead-letter queue
// when dead-lettering is on.
func (t Topology) WithQueue(queue string) Topology {
	add := func(name string) {
		if !slices.Contains(t.Queues, name) {
			t.Queues = append(t.Queues, name)
		}
	}
	t.Queues = slices.Clone(t.Queues)
	add(queue)
	if t.DeadLetter {
		add(DeadLetterQueue(queue))
	}
	return t
}

// Declare creates every exchange, queue and binding in t.
func Declare(d Declarer, t Topology) error {
	for _, ex := range t.Exchanges {
		err := d.ExchangeDeclare(
			ex.Name, // name
			ex.Kind, // type
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}

	for _, q := range t.Queues {
		_, err := d.QueueDeclare(
			q,     // name
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	for _, b := range t.Bindings {
		err := d.QueueBind(
			b.Queue,    // queue name
			b.Key,      // routing key
			b.Exchange, // exchange
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}
