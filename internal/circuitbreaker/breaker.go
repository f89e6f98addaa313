package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ErrOpen is returned by Allow while the backend is considered down.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State int32

const (
	// StateClosed - calls flow through
	StateClosed State = iota
	// StateOpen - calls fail fast without touching the network
	StateOpen
	// StateHalfOpen - a few probe calls test whether the backend recovered
	StateHalfOpen
)

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

type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes before closing
	SuccessThreshold int
	// Timeout is how long to stay open before probing
	Timeout time.Duration
	// MinimumRequestThreshold is the minimum calls seen before the breaker may trip
	MinimumRequestThreshold int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:        5,
		SuccessThreshold:        2,
		Timeout:                 30 * time.Second,
		MinimumRequestThreshold: 3,
	}
}

// FromConfig maps the backend breaker section of the app config.
func FromConfig(c config.BreakerCfg) Config {
	d := DefaultConfig()
	if c.FailureThreshold > 0 {
		d.FailureThreshold = c.FailureThreshold
	}
	if c.SuccessThreshold > 0 {
		d.SuccessThreshold = c.SuccessThreshold
	}
	if c.OpenTimeoutSec > 0 {
		d.Timeout = time.Duration(c.OpenTimeoutSec) * time.Second
	}
	if c.MinRequests > 0 {
		d.MinimumRequestThreshold = c.MinRequests
	}
	return d
}

// Breaker guards calls to one backend API.
type Breaker struct {
	name   string
	config Config

	state        atomic.Int32
	failures     atomic.Int64 // consecutive failures
	successes    atomic.Int64 // consecutive successes while half-open
	requests     atomic.Int64 // calls since last transition; in-flight probes when half-open
	lastFailTime atomic.Int64 // unix nano

	mu      sync.Mutex // serialises transitions
	nowFunc func() time.Time
}

func New(name string, config Config) *Breaker {
	b := &Breaker{
		name:    name,
		config:  config,
		nowFunc: time.Now,
	}
	b.state.Store(int32(StateClosed))
	b.lastFailTime.Store(b.nowFunc().UnixNano())
	metrics.CircuitState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Allow reports whether a call may proceed. When release is true the caller
// holds a half-open probe slot and must call Release once the call finishes.
func (b *Breaker) Allow() (release bool, err error) {
	switch State(b.state.Load()) {
	case StateClosed:
		b.requests.Add(1)
		return false, nil

	case StateOpen:
		elapsed := b.nowFunc().Sub(time.Unix(0, b.lastFailTime.Load()))
		if elapsed >= b.config.Timeout {
			b.mu.Lock()
			if State(b.state.Load()) == StateOpen {
				b.transitionTo(StateHalfOpen)
				b.requests.Add(1)
				b.mu.Unlock()
				metrics.CircuitHalfOpenProbes.WithLabelValues(b.name).Inc()
				return true, nil
			}
			b.mu.Unlock()
			return b.Allow()
		}
		return false, fmt.Errorf("%w for %s (retry in %v)", ErrOpen, b.name, (b.config.Timeout - elapsed).Round(time.Second))

	case StateHalfOpen:
		if int(b.requests.Add(1)) > b.config.SuccessThreshold {
			b.requests.Add(-1)
			return false, fmt.Errorf("%w for %s: probe limit reached", ErrOpen, b.name)
		}
		metrics.CircuitHalfOpenProbes.WithLabelValues(b.name).Inc()
		return true, nil
	}
	return false, errors.New("circuit breaker in unknown state")
}

// Release frees a half-open probe slot.
func (b *Breaker) Release() {
	if State(b.state.Load()) == StateHalfOpen {
		b.requests.Add(-1)
	}
}

func (b *Breaker) RecordSuccess() {
	switch State(b.state.Load()) {
	case StateClosed:
		b.failures.Store(0)

	case StateHalfOpen:
		successes := b.successes.Add(1)
		if int(successes) >= b.config.SuccessThreshold {
			b.mu.Lock()
			if State(b.state.Load()) == StateHalfOpen {
				b.transitionTo(StateClosed)
				b.failures.Store(0)
				b.successes.Store(0)
				log.Info().
					Str("backend", b.name).
					Int("successes", int(successes)).
					Msg("circuit breaker recovered")
			}
			b.mu.Unlock()
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.lastFailTime.Store(b.nowFunc().UnixNano())

	switch State(b.state.Load()) {
	case StateClosed:
		failures := b.failures.Add(1)
		requests := b.requests.Load()
		if int(failures) >= b.config.FailureThreshold && int(requests) >= b.config.MinimumRequestThreshold {
			b.mu.Lock()
			if State(b.state.Load()) == StateClosed {
				b.transitionTo(StateOpen)
				log.Error().
					Str("backend", b.name).
					Int("failures", int(failures)).
					Int("requests", int(requests)).
					Msg("circuit breaker opened")
			}
			b.mu.Unlock()
		}

	case StateHalfOpen:
		b.mu.Lock()
		if State(b.state.Load()) == StateHalfOpen {
			b.transitionTo(StateOpen)
			b.successes.Store(0)
			log.Warn().Str("backend", b.name).Msg("circuit breaker reopened after half-open failure")
		}
		b.mu.Unlock()

	case StateOpen:
		b.failures.Add(1)
	}
}

// caller holds mu
func (b *Breaker) transitionTo(next State) {
	prev := State(b.state.Load())
	b.state.Store(int32(next))
	b.requests.Store(0)

	metrics.CircuitState.WithLabelValues(b.name).Set(float64(next))
	metrics.CircuitTransitions.WithLabelValues(b.name, prev.String(), next.String()).Inc()

	log.Info().
		Str("backend", b.name).
		Str("old_state", prev.String()).
		Str("new_state", next.String()).
		Msg("circuit breaker state transition")
}

func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if State(b.state.Load()) != StateClosed {
		b.transitionTo(StateClosed)
	}
	b.failures.Store(0)
	b.successes.Store(0)
	b.requests.Store(0)
}
