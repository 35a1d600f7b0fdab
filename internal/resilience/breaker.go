// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resilience guards the dispatch route with a consecutive-failure
// breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// ErrCircuitOpen is returned instead of calling fn while the breaker refuses traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Clock is the time source used to measure the cooldown.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// CircuitBreaker opens after threshold consecutive failures. Once cooldown
// has elapsed it admits exactly one probe; the probe's outcome closes or
// reopens it.
type CircuitBreaker struct {
	route     string
	threshold int
	cooldown  time.Duration
	clock     Clock
	isFailure func(error) bool

	mu       sync.Mutex
	state    State
	streak   int
	openedAt time.Time
	inProbe  bool
}

type Option func(*CircuitBreaker)

func WithClock(c Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate decides which errors count towards the threshold.
// The default counts everything except context.Canceled.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

// NewCircuitBreaker returns a closed breaker for route. Non-positive
// arguments select the defaults.
func NewCircuitBreaker(route string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		route:     route,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     wallClock{},
		isFailure: func(err error) bool { return !errors.Is(err, context.Canceled) },
		state:     StateClosed,
	}
	if cb.threshold <= 0 {
		cb.threshold = defaultThreshold
	}
	if cb.cooldown <= 0 {
		cb.cooldown = defaultCooldown
	}
	for _, o := range opts {
		o(cb)
	}
	metrics.SetBreakerState(route, string(StateClosed))
	return cb
}

// Execute calls fn unless the breaker is open or a probe is already out.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	cb.settle(err)
	return err
}

// Allow reports whether Execute would currently run fn. It does not claim
// the probe slot.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.admissible()
}

// Reset closes the breaker unconditionally.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak, cb.inProbe = 0, false
	cb.moveTo(StateClosed, "")
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.clock.Now().Sub(cb.openedAt) > cb.cooldown
}

// admissible must be called with mu held.
func (cb *CircuitBreaker) admissible() bool {
	switch cb.state {
	case StateOpen:
		return cb.cooledDown()
	case StateHalfOpen:
		return !cb.inProbe
	default:
		return true
	}
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.admissible() {
		return false
	}
	if cb.state == StateOpen {
		cb.moveTo(StateHalfOpen, "")
	}
	if cb.state == StateHalfOpen {
		cb.inProbe = true
	}
	return true
}

func (cb *CircuitBreaker) settle(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	probe := cb.inProbe
	cb.inProbe = false

	switch {
	case err == nil:
		cb.streak = 0
		cb.moveTo(StateClosed, "")
	case !cb.isFailure(err):
		// Neutral outcome: a half-open breaker stays half-open for the next probe.
	case probe:
		cb.streak++
		cb.moveTo(StateOpen, "half_open_failure")
	default:
		cb.streak++
		if cb.state == StateClosed && cb.streak >= cb.threshold {
			cb.moveTo(StateOpen, "threshold_exceeded")
		}
	}
}

// moveTo must be called with mu held. tripReason is recorded when entering
// the open state.
func (cb *CircuitBreaker) moveTo(next State, tripReason string) {
	prev := cb.state
	if prev == next {
		return
	}
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.clock.Now()
		metrics.RecordBreakerTrip(cb.route, tripReason)
	}
	metrics.SetBreakerState(cb.route, string(next))

	evt := log.L().Info()
	if next == StateOpen {
		evt = log.L().Warn()
	}
	evt.Str("route", cb.route).
		Str(log.FieldOldState, string(prev)).
		Str(log.FieldNewState, string(next)).
		Int("failures", cb.streak).
		Msg("breaker state changed")
}
