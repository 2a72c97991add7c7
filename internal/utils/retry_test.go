package utils

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-service/internal/logging"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), logging.NewTest(io.Discard), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	err := Retry(context.Background(), logging.NewTest(io.Discard), 2, time.Millisecond, func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, logging.NewTest(io.Discard), 5, time.Hour, func() error {
		calls++
		return errors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
