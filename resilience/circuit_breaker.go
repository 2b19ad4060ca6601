// Package resilience provides the retry and circuit-breaker primitives
// protecting the pipeline's three blocking operations (spec.md §5: the
// search adapter's HTTP call, registry/repository writes, the blacklist
// cache miss path). CircuitBreaker is grounded on the teacher's
// resilience.CircuitBreaker (closed/open/half-open state machine with a
// failure threshold and cooldown timeout) trimmed to what this core
// actually exercises — the teacher's version additionally carries
// per-error-type classification and a pluggable MetricsCollector that no
// SPEC_FULL component consumes.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
)

// CircuitState is one node of the breaker's state machine.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker implements core.CircuitBreaker: closed allows all calls;
// once FailureThreshold consecutive failures accrue it opens and rejects
// calls for Timeout; after Timeout it allows up to HalfOpenRequests probe
// calls, closing again on success or re-opening on any failure.
type CircuitBreaker struct {
	mu sync.Mutex

	name              string
	failureThreshold  int
	timeout           time.Duration
	halfOpenRequests  int
	logger            core.Logger

	state            CircuitState
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight int
}

// Config configures a CircuitBreaker. Zero values fall back to the
// defaults named in config.ResilienceConfig.
type Config struct {
	Name             string
	FailureThreshold int
	Timeout          time.Duration
	HalfOpenRequests int
	Logger           core.Logger
}

// NewCircuitBreaker builds a breaker starting in the closed state.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		timeout:          cfg.Timeout,
		halfOpenRequests: cfg.HalfOpenRequests,
		logger:           logger,
		state:            StateClosed,
	}
}

// CanExecute reports whether a call would currently be allowed, advancing
// open -> half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.timeout {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenInFlight = 0
			return true
		}
		return false
	case StateHalfOpen:
		return cb.halfOpenInFlight < cb.halfOpenRequests
	default:
		return false
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return core.ErrCircuitBreakerOpen
	}
	cb.mu.Lock()
	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordSuccess closes the breaker (from any state) and resets failure
// tracking.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure counts a failure, opening the breaker once the threshold is
// reached, or immediately re-opening from half-open (a probe failed).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateOpen)
		return
	}

	cb.consecutiveFails++
	if cb.consecutiveFails >= cb.failureThreshold {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if to == StateClosed {
		cb.consecutiveFails = 0
	}
	if from != to {
		cb.logger.Info("circuit breaker state change", map[string]interface{}{
			"breaker": cb.name, "from": from.String(), "to": to.String(),
		})
	}
}

// State returns the current state name ("closed", "open", "half-open").
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Reset forces the breaker back to closed, discarding failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}
