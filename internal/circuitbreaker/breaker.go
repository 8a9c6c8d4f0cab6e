package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the current state of the breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned when the breaker rejects a call outright.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe quota is spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes a Breaker.
type Config struct {
	// MaxRequests is how many probe requests may pass in half-open state.
	MaxRequests uint32
	// Interval resets the closed-state counters when it elapses.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32
	// SuccessThreshold is the consecutive success count that closes it again.
	SuccessThreshold uint32
	// OnStateChange is called outside the hot path on every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns settings suitable for the backend HTTP services.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts tracks request outcomes within one generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) onRequest() {
	c.Requests++
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}

// Breaker wraps calls to a single backend and fails fast once the
// backend looks unhealthy. Counters are generation-scoped so that
// outcomes from a previous state cannot leak into the current one.
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a closed Breaker named after the backend it guards.
func New(name string, config Config, logger *zap.Logger) *Breaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	b := &Breaker{
		name:   name,
		config: config,
		logger: logger,
	}
	b.toNewGeneration(time.Now())
	return b
}

// Name returns the backend name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State reports the current state, advancing open -> half-open when
// the open timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

// Execute runs fn under the breaker. When the breaker is open the
// call is rejected with ErrOpen without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterRequest(generation, false)
			panic(r)
		}
	}()

	callErr := fn()
	b.afterRequest(generation, callErr == nil)
	return callErr
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)

	if state == StateOpen {
		return generation, ErrOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.config.MaxRequests {
		return generation, ErrTooManyRequests
	}

	b.counts.onRequest()
	return generation, nil
}

func (b *Breaker) afterRequest(before uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.currentState(now)
	if generation != before {
		return
	}

	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.onSuccess()
	case StateHalfOpen:
		b.counts.onSuccess()
		if b.counts.ConsecutiveSuccesses >= b.config.SuccessThreshold {
			b.setState(StateClosed, now)
		}
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.counts.onFailure()
		if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.toNewGeneration(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.toNewGeneration(now)

	if b.logger != nil {
		b.logger.Warn("circuit breaker state change",
			zap.String("breaker", b.name),
			zap.String("from", prev.String()),
			zap.String("to", state.String()),
		)
	}
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) toNewGeneration(now time.Time) {
	b.generation++
	b.counts.clear()

	switch b.state {
	case StateClosed:
		if b.config.Interval > 0 {
			b.expiry = now.Add(b.config.Interval)
		} else {
			b.expiry = time.Time{}
		}
	case StateOpen:
		b.expiry = now.Add(b.config.Timeout)
	default:
		b.expiry = time.Time{}
	}
}
