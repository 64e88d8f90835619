package broker

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for tests and local development.
// It emulates the durable-queue contract with a FIFO slice plus two sets:
// payloads currently enqueued-or-in-flight (for publish-side dedup) and
// payloads dequeued but not yet acked (for redelivery).
type MemoryBroker struct {
	mu       sync.Mutex
	queue    []string
	enqueued map[string]bool
	unacked  map[string]bool
	signal   chan struct{}
	closed   bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		enqueued: make(map[string]bool),
		unacked:  make(map[string]bool),
		signal:   make(chan struct{}, 1),
	}
}

// Publish enqueues the payloads, skipping any that are already enqueued
// or in flight and not yet acked. Returns the payloads actually queued.
func (b *MemoryBroker) Publish(_ context.Context, payloads ...string) ([]string, error) {
	b.mu.Lock()
	var queued []string
	for _, p := range payloads {
		if b.enqueued[p] {
			continue
		}
		b.enqueued[p] = true
		b.queue = append(b.queue, p)
		queued = append(queued, p)
	}
	b.mu.Unlock()

	if len(queued) > 0 {
		select {
		case b.signal <- struct{}{}:
		default:
		}
	}
	return queued, nil
}

// Get blocks until a message is available or ctx is done.
func (b *MemoryBroker) Get(ctx context.Context) (Delivery, error) {
	for {
		if d, ok := b.tryGet(); ok {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-b.signal:
		}
	}
}

// tryGet pops the head of the queue without blocking.
func (b *MemoryBroker) tryGet() (Delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Delivery{}, false
	}
	p := b.queue[0]
	b.queue = b.queue[1:]
	b.unacked[p] = true
	// The payload doubles as the receipt: publish-side dedup guarantees a
	// payload is in flight at most once.
	return Delivery{Payload: p, Receipt: p}, true
}

// Drain blocks for the first message, then collects up to limit
// already-available messages.
func (b *MemoryBroker) Drain(ctx context.Context, limit int) ([]Delivery, error) {
	first, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	deliveries := []Delivery{first}
	for len(deliveries) < limit {
		d, ok := b.tryGet()
		if !ok {
			break
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Ack removes the messages permanently, clearing both the in-flight set
// and the publish-dedup set so the payload can be enqueued again.
func (b *MemoryBroker) Ack(_ context.Context, deliveries ...Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range deliveries {
		delete(b.unacked, d.Payload)
		delete(b.enqueued, d.Payload)
	}
	return nil
}

// RequeueUnacked moves all dequeued-but-unacked payloads back onto the
// queue. A consumer runs this at startup to recover work a crashed
// predecessor left in flight.
func (b *MemoryBroker) RequeueUnacked() int {
	b.mu.Lock()
	n := len(b.unacked)
	for p := range b.unacked {
		b.queue = append(b.queue, p)
		delete(b.unacked, p)
	}
	b.mu.Unlock()

	if n > 0 {
		select {
		case b.signal <- struct{}{}:
		default:
		}
	}
	return n
}

// Size returns the number of payloads enqueued or in flight.
func (b *MemoryBroker) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.enqueued)
}

// Close is a no-op for the in-memory broker.
func (b *MemoryBroker) Close() error { return nil }
