// Package resilience provides the circuit breaker that guards market-data
// calls.
package resilience

import (
	"context"
	"sync"
	"time"

	errs "nifty-strangler/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // Testing if service recovered
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close
	SuccessThreshold int
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// MaxConcurrent is the maximum concurrent requests allowed (0 = unlimited)
	MaxConcurrent int
	// IsFailure decides whether an error counts against the circuit.
	// Nil counts every error.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu              sync.RWMutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
	concurrent      int

	totalRequests int64
	totalFailures int64
	totalRejected int64
	totalTimeouts int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn with circuit breaker protection. The context bounds the
// wait: if it expires first, Execute returns ctx.Err() and the call is
// recorded as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := ExecuteWithResult(cb, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithResult runs a function that returns a result with circuit breaker protection.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := cb.allowRequest(); err != nil {
		return zero, err
	}

	cb.mu.Lock()
	cb.concurrent++
	cb.totalRequests++
	cb.mu.Unlock()

	defer func() {
		cb.mu.Lock()
		cb.concurrent--
		cb.mu.Unlock()
	}()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			cb.recordError(r.err)
			return zero, r.err
		}
		cb.recordSuccess()
		return r.value, nil
	case <-ctx.Done():
		cb.mu.Lock()
		cb.totalTimeouts++
		cb.mu.Unlock()
		cb.recordFailure()
		return zero, ctx.Err()
	}
}

func (cb *CircuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.config.MaxConcurrent > 0 && cb.concurrent >= cb.config.MaxConcurrent {
		cb.totalRejected++
		return errs.ErrTooManyConcurrent
	}

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		cb.totalRejected++
		return errs.ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recordError(err error) {
	if cb.config.IsFailure != nil && !cb.config.IsFailure(err) {
		// The dependency answered; it just had nothing for us.
		cb.recordSuccess()
		return
	}
	cb.recordFailure()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure in half-open goes back to open
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalRejected:   cb.totalRejected,
		TotalTimeouts:   cb.totalTimeouts,
		LastStateChange: cb.lastStateChange,
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	Name            string
	State           CircuitState
	TotalRequests   int64
	TotalFailures   int64
	TotalRejected   int64
	TotalTimeouts   int64
	LastStateChange time.Time
}
