package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreaker guards calls to the payment processor so a degraded
// processor fails fast instead of holding purchase sessions open.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	interval     time.Duration
	timeout      time.Duration
	failureRatio float64

	mutex      sync.Mutex
	state      BreakerState
	generation uint64
	counts     BreakerCounts
	expiry     time.Time
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

type BreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

var ErrBreakerOpen = errors.New("circuit breaker is open")

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxRequests:  10,
		interval:     60 * time.Second,
		timeout:      30 * time.Second,
		failureRatio: 0.6,
		state:        BreakerClosed,
	}
}

// Execute runs req under the breaker. The context is passed through
// untouched; timeout policy belongs to the transport underneath.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() (any, error)) (any, error) {
	generation, err := cb.beforeRequest()
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			cb.afterRequest(generation, false)
			panic(e)
		}
	}()

	result, err := req()
	cb.afterRequest(generation, err == nil)
	return result, err
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	state, _ := cb.currentState(time.Now())
	return state
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	if state == BreakerOpen {
		return generation, ErrBreakerOpen
	}
	if state == BreakerHalfOpen && cb.counts.Requests >= cb.maxRequests {
		return generation, ErrBreakerOpen
	}

	cb.counts.Requests++
	return generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)
	if generation != before {
		// the window rolled while the call was in flight
		return
	}

	if success {
		cb.onSuccess(state, now)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state BreakerState, now time.Time) {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if state == BreakerHalfOpen {
		cb.state = BreakerClosed
		cb.toNewGeneration(now)
	}
}

func (cb *CircuitBreaker) onFailure(state BreakerState, now time.Time) {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	if state == BreakerHalfOpen || cb.readyToTrip() {
		cb.state = BreakerOpen
		cb.expiry = now.Add(cb.timeout)
		cb.toNewGeneration(now)
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.Requests >= cb.maxRequests &&
		float64(cb.counts.TotalFailures)/float64(cb.counts.Requests) >= cb.failureRatio
}

func (cb *CircuitBreaker) currentState(now time.Time) (BreakerState, uint64) {
	switch cb.state {
	case BreakerClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case BreakerOpen:
		if cb.expiry.Before(now) {
			cb.state = BreakerHalfOpen
			cb.toNewGeneration(now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = BreakerCounts{}

	switch cb.state {
	case BreakerClosed:
		cb.expiry = now.Add(cb.interval)
	case BreakerOpen:
		// expiry already set by onFailure
	default:
		cb.expiry = time.Time{}
	}
}
