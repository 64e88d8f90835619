package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrokerAMQP, cfg.BrokerDriver)
	assert.Equal(t, "jobs", cfg.QueueName)
	assert.Equal(t, 100, cfg.PrefetchCount)
	assert.Equal(t, 10*time.Second, cfg.CacheTTL())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, time.Second, cfg.CallbackTimeout())
	assert.Equal(t, "127.0.0.1:8000", cfg.APIAddr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BROKER_DRIVER", "memory")
	t.Setenv("CACHE_TTL_S", "30")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrokerMemory, cfg.BrokerDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, "127.0.0.1:9090", cfg.APIAddr())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsUnknownBrokerDriver(t *testing.T) {
	t.Setenv("BROKER_DRIVER", "kafka")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsZeroPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_S", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_SQSDriverRequiresQueueURL(t *testing.T) {
	t.Setenv("BROKER_DRIVER", "sqs")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123456789012/jobs")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BrokerSQS, cfg.BrokerDriver)
}

func TestNewLogger_LevelGating(t *testing.T) {
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := NewLogger(cfg)

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
}
