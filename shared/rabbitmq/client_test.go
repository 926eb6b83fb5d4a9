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

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, backoff(base, 2, 0))
	assert.Equal(t, 200*time.Millisecond, backoff(base, 2, 1))
	assert.Equal(t, 400*time.Millisecond, backoff(base, 2, 2))
	assert.Equal(t, 225*time.Millisecond, backoff(base, 1.5, 2))
}

func TestPublishWithRetry_NotConnected(t *testing.T) {
	c := &Client{
		config: &Config{RoutingKey: "transfer.#"},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := c.PublishWithRetry(context.Background(), "transfer.export.completed", []byte(`{}`), "application/json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
	assert.False(t, c.IsConnected())
}
