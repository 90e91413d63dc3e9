package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "test", func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := Classify("This video is private")
	err := WithRetry(context.Background(), "test", func() error {
		calls++
		return terminal
	})
	assert.Equal(t, terminal, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, "test", func() error {
		calls++
		cancel()
		return Classify("connection reset")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
