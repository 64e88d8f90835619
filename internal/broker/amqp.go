package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cronback/internal/types"
)

// AMQP connection retry bounds. Connection establishment retries with
// exponential backoff; once connected, operation failures surface to the
// caller as retryable errors instead of being swallowed.
const (
	amqpConnectAttempts = 10
	amqpConnectBaseWait = time.Second
	amqpConnectMaxWait  = 30 * time.Second
)

// AMQPBroker implements Broker over RabbitMQ. The queue is declared
// durable and messages are published persistent; consuming uses manual
// acks with a prefetch window, so messages held by a consumer that
// disconnects before acking are redelivered by the broker.
type AMQPBroker struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queueName  string
	deliveries <-chan amqp.Delivery

	mu      sync.Mutex
	unacked map[string]amqp.Delivery

	logger *slog.Logger
}

// NewAMQPBroker connects to RabbitMQ with bounded exponential backoff,
// declares the durable queue, and starts a manual-ack consumer with the
// given prefetch count.
func NewAMQPBroker(url, queueName string, prefetch int, logger *slog.Logger) (*AMQPBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dialWithRetry(url, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to open AMQP channel", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to set AMQP prefetch", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to declare AMQP queue", err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to start AMQP consumer", err)
	}

	logger.Info("AMQP broker connected", "queue", queueName, "prefetch", prefetch)

	return &AMQPBroker{
		conn:       conn,
		channel:    ch,
		queueName:  queueName,
		deliveries: deliveries,
		unacked:    make(map[string]amqp.Delivery),
		logger:     logger,
	}, nil
}

// dialWithRetry dials the AMQP URL, retrying with exponential backoff up
// to amqpConnectAttempts before giving up.
func dialWithRetry(url string, logger *slog.Logger) (*amqp.Connection, error) {
	wait := amqpConnectBaseWait
	var lastErr error
	for attempt := 1; attempt <= amqpConnectAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("AMQP connection failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
		time.Sleep(wait)
		wait *= 2
		if wait > amqpConnectMaxWait {
			wait = amqpConnectMaxWait
		}
	}
	return nil, types.NewAppError(types.ErrCodeBrokerUnavailable,
		fmt.Sprintf("AMQP connection failed after %d attempts", amqpConnectAttempts), lastErr)
}

// Publish sends each payload to the queue via the default exchange as a
// persistent message. Returns the payloads accepted by the broker.
func (b *AMQPBroker) Publish(ctx context.Context, payloads ...string) ([]string, error) {
	var published []string
	for _, p := range payloads {
		err := b.channel.PublishWithContext(ctx, "", b.queueName, false, false,
			amqp.Publishing{
				ContentType:  "text/plain",
				DeliveryMode: amqp.Persistent,
				Body:         []byte(p),
			},
		)
		if err != nil {
			return published, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to publish message", err)
		}
		published = append(published, p)
	}
	return published, nil
}

// Get blocks until the consumer channel yields a message or ctx is done.
func (b *AMQPBroker) Get(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case msg, ok := <-b.deliveries:
		if !ok {
			return Delivery{}, types.NewAppError(types.ErrCodeBrokerUnavailable, "AMQP consumer channel closed", nil)
		}
		return b.track(msg), nil
	}
}

// Drain blocks for the first message, then greedily collects whatever the
// prefetch window has already delivered, up to limit.
func (b *AMQPBroker) Drain(ctx context.Context, limit int) ([]Delivery, error) {
	first, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	deliveries := []Delivery{first}
	for len(deliveries) < limit {
		select {
		case msg, ok := <-b.deliveries:
			if !ok {
				return deliveries, nil
			}
			deliveries = append(deliveries, b.track(msg))
		default:
			return deliveries, nil
		}
	}
	return deliveries, nil
}

// track records the raw delivery for later ack, keyed by delivery tag.
func (b *AMQPBroker) track(msg amqp.Delivery) Delivery {
	receipt := strconv.FormatUint(msg.DeliveryTag, 10)
	b.mu.Lock()
	b.unacked[receipt] = msg
	b.mu.Unlock()
	return Delivery{Payload: string(msg.Body), Receipt: receipt}
}

// Ack acknowledges each delivery by tag. Unknown receipts (already acked
// or from a previous channel) are skipped.
func (b *AMQPBroker) Ack(_ context.Context, deliveries ...Delivery) error {
	for _, d := range deliveries {
		b.mu.Lock()
		msg, ok := b.unacked[d.Receipt]
		delete(b.unacked, d.Receipt)
		b.mu.Unlock()
		if !ok {
			continue
		}
		if err := msg.Ack(false); err != nil {
			return types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to ack message", err)
		}
	}
	return nil
}

// Close shuts the channel and connection. Unacked messages are returned
// to the queue by the broker when the channel closes.
func (b *AMQPBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		b.conn.Close()
		return types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to close AMQP channel", err)
	}
	return b.conn.Close()
}
