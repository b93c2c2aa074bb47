package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

// ErrCircuitOpen is returned while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to an unreliable dependency.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
	State() CircuitBreakerState
}

// DefaultCircuitBreaker opens after a run of consecutive failures and lets a
// trial request through once resetTimeout has elapsed.
type DefaultCircuitBreaker struct {
	mu sync.RWMutex

	state               CircuitBreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	lastFailureTime     time.Time
	now                 func() time.Time

	onStateChange func(state CircuitBreakerState)
}

// NewDefaultCircuitBreaker creates a closed circuit breaker.
func NewDefaultCircuitBreaker(failureThreshold int, resetTimeout time.Duration,
	onStateChange func(state CircuitBreakerState)) *DefaultCircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &DefaultCircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		onStateChange:    onStateChange,
	}
}

func (cb *DefaultCircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *DefaultCircuitBreaker) currentState() CircuitBreakerState {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *DefaultCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.success()
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		// caller went away; says nothing about the dependency
	case errors.Is(err, ErrIncrementUnsupported), errors.Is(err, ErrUserNotFound):
		cb.success()
	default:
		cb.failure()
	}
	return err
}

func (cb *DefaultCircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentState() != StateClosed {
		cb.changeState(StateClosed)
	}
	cb.consecutiveFailures = 0
}

func (cb *DefaultCircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentState()
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.now()

	if state == StateHalfOpen || (state == StateClosed && cb.consecutiveFailures >= cb.failureThreshold) {
		cb.changeState(StateOpen)
	}
}

func (cb *DefaultCircuitBreaker) changeState(newState CircuitBreakerState) {
	if cb.state != newState {
		cb.state = newState
		if cb.onStateChange != nil {
			cb.onStateChange(newState)
		}
	}
}

// CircuitBreakerStore wraps an AttributeStore with circuit breaker protection.
type CircuitBreakerStore struct {
	store AttributeStore
	cb    CircuitBreaker
}

// NewCircuitBreakerStore creates a store wrapper guarded by cb.
func NewCircuitBreakerStore(store AttributeStore, cb CircuitBreaker) *CircuitBreakerStore {
	return &CircuitBreakerStore{store: store, cb: cb}
}

func (s *CircuitBreakerStore) GetAttributes(ctx context.Context, userID string) (Attributes, error) {
	var attrs Attributes
	err := s.cb.Execute(ctx, func() error {
		var e error
		attrs, e = s.store.GetAttributes(ctx, userID)
		return e
	})
	return attrs, err
}

func (s *CircuitBreakerStore) SetAttributes(ctx context.Context, userID string, attrs Attributes) error {
	return s.cb.Execute(ctx, func() error {
		return s.store.SetAttributes(ctx, userID, attrs)
	})
}

func (s *CircuitBreakerStore) IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error) {
	inc, ok := s.store.(Incrementer)
	if !ok {
		return 0, ErrIncrementUnsupported
	}
	var n int
	err := s.cb.Execute(ctx, func() error {
		var e error
		n, e = inc.IncrementAttribute(ctx, userID, name, delta)
		return e
	})
	return n, err
}
