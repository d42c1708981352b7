package clients

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every request through.
	StateClosed State = iota

	// StateOpen rejects requests until the cool-down has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probes through.
	StateHalfOpen
)

var stateNames = [...]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// Timeout is the cool-down spent open before probing.
	Timeout time.Duration

	// HalfOpenLimit is both the number of concurrent probes allowed and the
	// number of consecutive probe successes that close the circuit.
	HalfOpenLimit int
}

// CircuitBreaker guards the quote source. Once the source has failed
// MaxFailures times in a row, sync cycles fail fast with ErrCircuitOpen
// instead of waiting out every retry.
//
//	closed    -> open       after MaxFailures consecutive failures
//	open      -> half-open  once Timeout has elapsed since the last failure
//	half-open -> closed     after HalfOpenLimit consecutive successes
//	half-open -> open       on any failure
type CircuitBreaker struct {
	mu          sync.Mutex
	cfg         CircuitBreakerConfig
	state       State
	failures    int
	successes   int
	probes      int // in flight while half-open
	lastFailure time.Time

	onStateChange func(from, to State)

	// now is overridden in tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}

	if cfg.HalfOpenLimit < 1 {
		cfg.HalfOpenLimit = 1
	}

	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// OnStateChange registers fn to be called after every transition. fn runs
// synchronously on the goroutine that caused the transition, outside the
// breaker's lock.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.onStateChange = fn
}

// Allow reports whether a request may proceed. A true result must be
// followed by exactly one RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	return cb.step(func() bool {
		switch cb.state {
		case StateClosed:
			return true
		case StateOpen:
			if cb.now().Sub(cb.lastFailure) < cb.cfg.Timeout {
				return false
			}

			cb.enter(StateHalfOpen)
			cb.probes = 1

			return true
		default:
			if cb.probes >= cb.cfg.HalfOpenLimit {
				return false
			}

			cb.probes++

			return true
		}
	})
}

// RecordSuccess records a request that reached the source and got an answer.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.step(func() bool {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.probes--
			if cb.successes++; cb.successes >= cb.cfg.HalfOpenLimit {
				cb.enter(StateClosed)
			}
		}

		return true
	})
}

// RecordFailure records a request that failed to reach the source.
func (cb *CircuitBreaker) RecordFailure() {
	cb.step(func() bool {
		cb.lastFailure = cb.now()

		switch cb.state {
		case StateClosed:
			if cb.failures++; cb.failures >= cb.cfg.MaxFailures {
				cb.enter(StateOpen)
			}
		case StateHalfOpen:
			cb.enter(StateOpen)
		}

		return true
	})
}

// State returns the current state. An open breaker whose cool-down has
// elapsed still reports open until the next Allow.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// step runs fn under the lock and reports any transition it made to the
// OnStateChange callback once the lock is released.
func (cb *CircuitBreaker) step(fn func() bool) bool {
	cb.mu.Lock()
	from := cb.state
	ok := fn()
	to, notify := cb.state, cb.onStateChange
	cb.mu.Unlock()

	if from != to && notify != nil {
		notify(from, to)
	}

	return ok
}

// enter switches to state with fresh counters. The caller holds mu.
func (cb *CircuitBreaker) enter(state State) {
	cb.state = state
	cb.failures, cb.successes, cb.probes = 0, 0, 0
}
