package cache

import (
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// CircuitBreaker guards the Redis backend. After enough consecutive
// failures it opens and cache calls report ErrCacheDown immediately,
// so a dead Redis costs nothing instead of a timeout per request. After
// a cooldown a few probe calls are let through; if they all succeed the
// breaker closes again.
type CircuitBreaker struct {
	mu             sync.Mutex
	state          BreakerState
	failures       int
	probes         int
	probeSuccesses int
	openedAt       time.Time

	maxFailures int
	cooldown    time.Duration
	probeCount  int
}

type CircuitBreakerConfig struct {
	MaxFailures int           `json:"max_failures"`
	Cooldown    time.Duration `json:"cooldown"`
	ProbeCount  int           `json:"probe_count"`
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		ProbeCount:  3,
	}
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		state:       BreakerClosed,
		maxFailures: config.MaxFailures,
		cooldown:    config.Cooldown,
		probeCount:  config.ProbeCount,
	}
}

// Do runs fn unless the breaker is open, in which case the backend is
// reported down without being touched.
func (b *CircuitBreaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrCacheDown
	}

	if err := fn(); err != nil {
		b.fail()
		return err
	}

	b.succeed()
	return nil
}

// allow also drives the open -> half-open transition once the cooldown
// has passed, so callers never observe a stale open state.
func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probes = 1
		b.probeSuccesses = 0
		return true
	case BreakerHalfOpen:
		if b.probes >= b.probeCount {
			return false
		}
		b.probes++
		return true
	default:
		return true
	}
}

func (b *CircuitBreaker) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.probeSuccesses++
		if b.probeSuccesses >= b.probeCount {
			b.state = BreakerClosed
			b.failures = 0
		}
	}
}

func (b *CircuitBreaker) fail() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case BreakerClosed:
		if b.failures >= b.maxFailures {
			b.trip()
		}
	case BreakerHalfOpen:
		// A failed probe means the backend is still sick.
		b.trip()
	}
}

func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.probes = 0
	b.probeSuccesses = 0
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	stateName := "closed"
	switch b.state {
	case BreakerOpen:
		stateName = "open"
	case BreakerHalfOpen:
		stateName = "half-open"
	}

	return map[string]interface{}{
		"state":        stateName,
		"failures":     b.failures,
		"max_failures": b.maxFailures,
	}
}
