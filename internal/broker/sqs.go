package broker

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cronback/internal/types"
)

// sqsReceiveWaitSeconds is the long-poll wait for the blocking Get path.
const sqsReceiveWaitSeconds = 10

// sqsMaxBatchReceive is the SQS per-call receive ceiling.
const sqsMaxBatchReceive = 10

// SQSAPI abstracts the SQS operations the broker needs, satisfied by
// *sqs.Client from aws-sdk-go-v2.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSBroker implements Broker over an SQS queue. Redelivery of unacked
// messages is provided by the queue's visibility timeout: a message
// received but not deleted becomes visible to other consumers once the
// timeout lapses.
type SQSBroker struct {
	client   SQSAPI
	queueURL string
	logger   *slog.Logger
}

// NewSQSBroker creates an SQS-backed broker for the given queue URL.
func NewSQSBroker(client SQSAPI, queueURL string, logger *slog.Logger) *SQSBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSBroker{client: client, queueURL: queueURL, logger: logger}
}

// Publish sends each payload as its own message. Returns the payloads
// SQS accepted; a transport failure surfaces with the partial result.
func (b *SQSBroker) Publish(ctx context.Context, payloads ...string) ([]string, error) {
	var published []string
	for _, p := range payloads {
		_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(b.queueURL),
			MessageBody: aws.String(p),
		})
		if err != nil {
			return published, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to send SQS message", err)
		}
		published = append(published, p)
	}
	return published, nil
}

// Get long-polls the queue until a message arrives or ctx is done.
func (b *SQSBroker) Get(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(b.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     sqsReceiveWaitSeconds,
		})
		if err != nil {
			return Delivery{}, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to receive SQS message", err)
		}
		if len(out.Messages) == 0 {
			continue
		}
		msg := out.Messages[0]
		return Delivery{
			Payload: aws.ToString(msg.Body),
			Receipt: aws.ToString(msg.ReceiptHandle),
		}, nil
	}
}

// Drain blocks for the first message, then performs zero-wait receives to
// greedily collect whatever is already available, up to limit.
func (b *SQSBroker) Drain(ctx context.Context, limit int) ([]Delivery, error) {
	first, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	deliveries := []Delivery{first}

	for len(deliveries) < limit {
		batch := int32(limit - len(deliveries))
		if batch > sqsMaxBatchReceive {
			batch = sqsMaxBatchReceive
		}
		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(b.queueURL),
			MaxNumberOfMessages: batch,
			WaitTimeSeconds:     0,
		})
		if err != nil {
			// The first message is already in hand; surface it and let
			// the caller process what it has.
			b.logger.WarnContext(ctx, "SQS drain receive failed", "error", err.Error())
			return deliveries, nil
		}
		if len(out.Messages) == 0 {
			break
		}
		for _, msg := range out.Messages {
			deliveries = append(deliveries, Delivery{
				Payload: aws.ToString(msg.Body),
				Receipt: aws.ToString(msg.ReceiptHandle),
			})
		}
	}
	return deliveries, nil
}

// Ack deletes each message by receipt handle.
func (b *SQSBroker) Ack(ctx context.Context, deliveries ...Delivery) error {
	for _, d := range deliveries {
		_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(b.queueURL),
			ReceiptHandle: aws.String(d.Receipt),
		})
		if err != nil {
			return types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to delete SQS message", err)
		}
	}
	return nil
}

// Close is a no-op; the SQS client owns no persistent connection.
func (b *SQSBroker) Close() error { return nil }
