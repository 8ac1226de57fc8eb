package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	wantErr := errors.New("still broken")
	err := withRetry(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, maxAttempts, attempts)
}

func TestWithRetryNotFoundIsImmediate(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test", func(ctx context.Context) error {
		attempts++
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := withRetry(ctx, "test", func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryAppliesOperationDeadline(t *testing.T) {
	err := withRetry(context.Background(), "test", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok {
			return errors.New("no deadline set")
		}
		if time.Until(deadline) > opTimeout {
			return errors.New("deadline too far out")
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "certmint:job:abc", jobKey("certmint", "abc"))
	assert.Equal(t, "certmint:ext:xyz", extKey("certmint", "xyz"))
	assert.Equal(t, "certmint:queue:items", queueKey("certmint", "items"))
	assert.Equal(t, "certmint:lock:item:1", lockKey("certmint", "item:1"))
}
