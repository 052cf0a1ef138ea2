// Package breaker implements a circuit breaker protecting fallible downstream
// calls with failure-windowed thresholds and timed recovery probing.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed allows calls through normally.
	StateClosed State = iota

	// StateOpen rejects all calls until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen allows calls while probing recovery.
	StateHalfOpen
)

// String returns the human-readable name for the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is returned by Execute when the circuit is open and the recovery
// window has not elapsed.
type OpenError struct {
	Name          string
	NextAttemptAt time.Time
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is open until %s", e.Name, e.NextAttemptAt.Format(time.RFC3339))
}

// Config configures the circuit breaker behavior.
type Config struct {
	// FailureThreshold is the number of failures within FailureWindow that opens the circuit.
	// Default: 5
	FailureThreshold int

	// FailureWindow is the sliding window used for failure accounting. Failures
	// older than the window age out and no longer count toward the threshold.
	// Default: 60s
	FailureWindow time.Duration

	// SuccessThreshold is the number of consecutive half-open successes that closes the circuit.
	// Default: 2
	SuccessThreshold int

	// RecoveryTimeout is how long the circuit stays open before the next call
	// is allowed through as a recovery probe.
	// Default: 30s
	RecoveryTimeout time.Duration

	// ShouldTrigger decides whether an error counts as a circuit failure.
	// Nil means every error counts. Use this to exclude business validation
	// errors from opening the circuit.
	ShouldTrigger func(err error) bool
}

// DefaultConfig returns sensible defaults for the circuit breaker.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Stats contains a point-in-time snapshot of circuit breaker state.
type Stats struct {
	Name            string
	State           State
	WindowFailures  int
	HalfOpenSuccess int
	NextAttemptAt   time.Time
	LastStateChange time.Time
}

// CircuitBreaker wraps a fallible operation with the circuit breaker pattern.
//
// State transitions are lazy: OPEN becomes HALF_OPEN on the first call
// attempted at or after the recovery deadline, not on a timer. Failure
// accounting uses a sliding window of failure timestamps so stale failures
// age out instead of accumulating forever.
//
// Each breaker instance owns its state exclusively; processes do not share a
// distributed view of downstream health. Safe for concurrent use.
type CircuitBreaker struct {
	name   string
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failureTimes     []time.Time
	halfOpenSuccess  int
	nextAttemptAt    time.Time
	lastStateChange  time.Time
	onStateChange    func(name string, from, to State)
}

// Option configures optional CircuitBreaker behavior.
type Option func(*CircuitBreaker)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithStateChangeHook registers a callback invoked on every state transition.
// The callback must not block; it runs outside the breaker lock.
func WithStateChangeHook(fn func(name string, from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// New creates a new circuit breaker in the closed state. The name identifies
// the protected downstream dependency in logs and metrics.
func New(name string, config Config, logger *slog.Logger, opts ...Option) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastStateChange = cb.now()
	return cb
}

// Execute runs the operation through the circuit breaker.
//
// Returns *OpenError without invoking the operation when the circuit is open
// and the recovery window has not elapsed. The operation's own error is
// returned unchanged otherwise.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterCall(err)
	return err
}

// State returns the current circuit state without advancing lazy transitions.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker for health and admin surfaces.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		WindowFailures:  len(cb.failureTimes),
		HalfOpenSuccess: cb.halfOpenSuccess,
		NextAttemptAt:   cb.nextAttemptAt,
		LastStateChange: cb.lastStateChange,
	}
}

// ForceOpen opens the circuit immediately. Administrative escape hatch.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	from := cb.state
	cb.toOpen(cb.now())
	cb.mu.Unlock()

	cb.notify(from, StateOpen)
}

// Reset closes the circuit and clears all failure accounting. Administrative
// escape hatch.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureTimes = nil
	cb.halfOpenSuccess = 0
	cb.nextAttemptAt = time.Time{}
	cb.lastStateChange = cb.now()
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// beforeCall decides whether the call may proceed, applying the lazy
// OPEN -> HALF_OPEN transition.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()

	now := cb.now()
	if cb.state == StateOpen {
		if now.Before(cb.nextAttemptAt) {
			err := &OpenError{Name: cb.name, NextAttemptAt: cb.nextAttemptAt}
			cb.mu.Unlock()
			return err
		}

		// Recovery window elapsed: probe with this call.
		cb.state = StateHalfOpen
		cb.halfOpenSuccess = 0
		cb.lastStateChange = now
		cb.mu.Unlock()

		cb.notify(StateOpen, StateHalfOpen)
		return nil
	}

	cb.mu.Unlock()
	return nil
}

// afterCall records the call outcome and applies resulting transitions.
func (cb *CircuitBreaker) afterCall(err error) {
	if err == nil {
		cb.recordSuccess()
		return
	}
	if cb.config.ShouldTrigger != nil && !cb.config.ShouldTrigger(err) {
		return
	}
	cb.recordFailure()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		// A healthy call does not clear the window; stale failures age out on
		// their own.
		cb.mu.Unlock()

	case StateHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.config.SuccessThreshold {
			now := cb.now()
			cb.state = StateClosed
			cb.failureTimes = nil
			cb.halfOpenSuccess = 0
			cb.nextAttemptAt = time.Time{}
			cb.lastStateChange = now
			cb.mu.Unlock()

			cb.notify(StateHalfOpen, StateClosed)
			return
		}
		cb.mu.Unlock()

	default:
		cb.mu.Unlock()
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()

	now := cb.now()
	switch cb.state {
	case StateClosed:
		cb.failureTimes = append(cb.failureTimes, now)
		cb.pruneWindow(now)

		if len(cb.failureTimes) >= cb.config.FailureThreshold {
			cb.toOpen(now)
			cb.mu.Unlock()

			cb.notify(StateClosed, StateOpen)
			return
		}
		cb.mu.Unlock()

	case StateHalfOpen:
		// Any half-open failure reopens the circuit immediately.
		cb.toOpen(now)
		cb.mu.Unlock()

		cb.notify(StateHalfOpen, StateOpen)

	default:
		cb.mu.Unlock()
	}
}

// pruneWindow drops failure timestamps older than the sliding window.
// Must be called with the lock held.
func (cb *CircuitBreaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-cb.config.FailureWindow)
	kept := cb.failureTimes[:0]
	for _, t := range cb.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failureTimes = kept
}

// toOpen transitions to the open state. Must be called with the lock held.
func (cb *CircuitBreaker) toOpen(now time.Time) {
	cb.state = StateOpen
	cb.halfOpenSuccess = 0
	cb.nextAttemptAt = now.Add(cb.config.RecoveryTimeout)
	cb.lastStateChange = now
}

// notify logs the transition and invokes the state change hook. Runs outside
// the breaker lock so observers can never block callers.
func (cb *CircuitBreaker) notify(from, to State) {
	if cb.logger != nil {
		cb.logger.Info("circuit breaker state change",
			slog.String("breaker", cb.name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}
