// Package broker provides the durable at-least-once handoff queue between
// the scheduler poller (producer) and runner processes (consumers).
//
// Three backends exist: an in-memory queue for tests and local
// development, RabbitMQ (amqp091), and AWS SQS. All deliver at-least-once:
// messages dequeued but not acknowledged before a consumer dies become
// visible to other consumers again.
package broker

import "context"

// Delivery is one dequeued message: the payload (a schedule id) plus the
// backend-specific acknowledgement handle.
type Delivery struct {
	Payload string
	Receipt string
}

// Broker is the queue transport contract.
type Broker interface {
	// Publish enqueues each payload durably and returns the payloads that
	// were actually queued. A backend may deduplicate by payload value
	// within its own bookkeeping; this is independent of the dedup cache.
	Publish(ctx context.Context, payloads ...string) ([]string, error)

	// Get blocks until a message is available (bounded internal polling,
	// not unbounded spin) or ctx is done.
	Get(ctx context.Context) (Delivery, error)

	// Drain blocks until at least one message is available, then greedily
	// collects up to limit already-available messages without blocking
	// further.
	Drain(ctx context.Context, limit int) ([]Delivery, error)

	// Ack acknowledges successful processing, permanently removing the
	// messages from the queue.
	Ack(ctx context.Context, deliveries ...Delivery) error

	// Close releases the transport resources.
	Close() error
}
