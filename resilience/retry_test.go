package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinhagel/northstar-funding/core"
)

func TestRetry_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterPct: 0}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterPct: 0}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func() error { return errors.New("never reached") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorHandlerDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, ErrorHandlerDelay(0))
	assert.Equal(t, 400*time.Millisecond, ErrorHandlerDelay(1))
	assert.Equal(t, 800*time.Millisecond, ErrorHandlerDelay(2))
	assert.Equal(t, 8*time.Second, ErrorHandlerDelay(10))
}

func TestRetry_PermanentErrorStopsAfterFirstAttempt(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, JitterPct: 0}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return Permanent(core.ErrRequestRejected)
	})
	assert.ErrorIs(t, err, core.ErrRequestRejected)
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 1, calls)
}

func TestRetryWithCircuitBreaker_PermanentErrorDoesNotTripBreaker(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, JitterPct: 0}

	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		return Permanent(core.ErrRequestRejected)
	})
	assert.ErrorIs(t, err, core.ErrRequestRejected)
	assert.Equal(t, "closed", cb.State())
}

func TestRetryWithCircuitBreaker_SkipsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	cb.RecordFailure()

	calls := 0
	cfg := &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, JitterPct: 0}
	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		calls++
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 0, calls)
}
