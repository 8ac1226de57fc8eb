package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/certmint/certmint/pkg/metrics"
)

const (
	// Per-operation deadline applied inside the store.
	opTimeout = 5 * time.Second

	// Bounded exponential backoff for transient failures.
	maxAttempts = 3
	retryBase   = 100 * time.Millisecond
	retryCap    = 2 * time.Second
)

// withRetry runs fn under the operation deadline, retrying transient
// failures with exponential backoff. ErrNotFound and context cancellation
// are returned immediately.
func withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	delay := retryBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err = fn(opCtx)
		cancel()

		if err == nil {
			metrics.StoreOperations.WithLabelValues(op, "ok").Inc()
			return nil
		}
		if !retryable(ctx, err) || attempt == maxAttempts {
			break
		}

		metrics.StoreRetries.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			metrics.StoreOperations.WithLabelValues(op, "error").Inc()
			return ctx.Err()
		}
		delay *= 2
		if delay > retryCap {
			delay = retryCap
		}
	}

	metrics.StoreOperations.WithLabelValues(op, "error").Inc()
	return err
}

// retryable reports whether the error is worth another attempt. A deadline
// on the inner operation context is transient; cancellation of the caller's
// context is not.
func retryable(callerCtx context.Context, err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if callerCtx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
