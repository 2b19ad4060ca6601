package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
)

// RetryConfig configures exponential-backoff retry behavior. The adapter's
// default (spec.md §4.2) is base 200ms, factor 2, jitter ±25%, 3 attempts;
// the error handler's retry delay (spec.md §4.7) uses the same shape with
// an 8s cap.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPct     float64 // e.g. 0.25 for ±25%
}

// DefaultRetryConfig matches the adapter retry policy in spec.md §4.2.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		BackoffFactor: 2.0,
		JitterPct:     0.25,
	}
}

// PermanentError marks an error as not worth retrying — spec.md §4.2's
// "4xx is terminal (no retry)" class of failure. Retry returns it on the
// first attempt instead of spending the remaining attempts on it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry (and RetryWithCircuitBreaker) short-circuit
// on it rather than retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retry executes fn up to config.MaxAttempts times, sleeping between
// attempts with exponential backoff and jitter. It does not retry once the
// context is done, and returns immediately on a PermanentError without
// consuming further attempts.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return permErr.Err
		}

		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		sleepFor := jittered(delay, config.JitterPct)

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// jittered applies symmetric jitter in [-pct, +pct] of base, preventing
// synchronized retries across concurrent callers (thundering-herd
// mitigation).
func jittered(base time.Duration, pct float64) time.Duration {
	if pct <= 0 {
		return base
	}
	spread := float64(base) * pct
	offset := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(base) + offset)
	if result < 0 {
		return 0
	}
	return result
}

// ErrorHandlerDelay computes the error handler's re-publish delay
// (spec.md §4.7: "200 ms · 2^retryCount", capped at 8s).
func ErrorHandlerDelay(retryCount int) time.Duration {
	delay := 200 * time.Millisecond
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= 8*time.Second {
			return 8 * time.Second
		}
	}
	return delay
}

// RetryWithCircuitBreaker combines Retry with circuit-breaker protection:
// a call is skipped (and counted as a failure) whenever the breaker is
// open, and each outcome feeds the breaker's state. A PermanentError (a
// rejected request, not a broken dependency) passes through untouched —
// it neither trips nor heals the breaker.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb core.CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		err := fn()

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			return err
		}

		if err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
