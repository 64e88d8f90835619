package broker

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"cronback/internal/types"
)

// Options selects and configures a broker driver at startup.
type Options struct {
	// Driver is one of "memory", "amqp", "sqs".
	Driver string
	// URL is the AMQP connection string (amqp only).
	URL string
	// Queue is the AMQP queue name (amqp only).
	Queue string
	// Prefetch is the AMQP consumer prefetch window (amqp only).
	Prefetch int
	// SQSQueueURL is the queue URL (sqs only).
	SQSQueueURL string

	Logger *slog.Logger
}

// Open constructs the broker named by opts.Driver. The memory driver is
// process-local and only useful when all components share one process.
func Open(ctx context.Context, opts Options) (Broker, error) {
	switch opts.Driver {
	case "memory":
		return NewMemoryBroker(), nil
	case "amqp":
		return NewAMQPBroker(opts.URL, opts.Queue, opts.Prefetch, opts.Logger)
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeBrokerUnavailable, "failed to load AWS SDK config", err)
		}
		return NewSQSBroker(sqs.NewFromConfig(awsCfg), opts.SQSQueueURL, opts.Logger), nil
	default:
		return nil, types.NewAppError(types.ErrCodeBrokerUnavailable,
			fmt.Sprintf("unknown broker driver %q", opts.Driver), nil)
	}
}
