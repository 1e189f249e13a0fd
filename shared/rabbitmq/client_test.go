package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disconnectedClient() *Client {
	return &Client{
		config: &Config{
			ExchangeName:   "simulation_jobs",
			QueueName:      "simulation_jobs",
			PublishRetries: 2,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Disconnected(t *testing.T) {
	ctx := context.Background()
	client := disconnectedClient()

	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.HealthCheck(ctx), ErrNotConnected)
	assert.ErrorIs(t, client.Publish(ctx, []byte(`{}`), "application/json"), ErrNotConnected)

	bodies, err := client.Drain(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, bodies)
}

func TestClient_PublishWithRetryGivesUpWhenDisconnected(t *testing.T) {
	client := disconnectedClient()

	start := time.Now()
	err := client.PublishWithRetry(context.Background(), []byte(`{}`), "application/json")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	// not connected is permanent, so no backoff sleeps happen
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewClient_Unreachable(t *testing.T) {
	client, err := NewClient(&Config{
		Host:          "127.0.0.1",
		Port:          1,
		User:          "guest",
		Password:      "guest",
		VHost:         "/",
		RetryAttempts: 2,
		RetryInterval: 10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
