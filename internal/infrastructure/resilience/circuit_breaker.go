package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"travel-companion/internal/config"
	"travel-companion/internal/infrastructure/metrics"
)

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

func (s CircuitState) gauge() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes needed to close from half-open
	Timeout          time.Duration // how long to stay open before probing
	MaxHalfOpenCalls int
}

// DefaultCircuitBreakerConfig returns the defaults used for external providers.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 10,
		SuccessThreshold: 3,
		Timeout:          45 * time.Second,
		MaxHalfOpenCalls: 5,
	}
}

// CircuitBreaker guards one external provider.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	mu   sync.Mutex
	now  func() time.Time

	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	halfOpenCalls   int
}

// NewCircuitBreaker creates a breaker for the named provider.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
	metrics.RecordCircuitBreakerState(name, StateClosed.gauge())
	return cb
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	err := fn()
	cb.recordResult(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.cfg.Enabled {
		return StateClosed
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.cfg.Enabled {
		return true
	}

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.cfg.Timeout {
			cb.transition(StateHalfOpen)
			cb.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.cfg.MaxHalfOpenCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.cfg.Enabled {
		return
	}

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailureTime = cb.now()

		switch {
		case cb.state == StateHalfOpen:
			cb.transition(StateOpen)
		case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
			cb.transition(StateOpen)
		}
		return
	}

	cb.successes++
	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state != to {
		log.Info().
			Str("provider", cb.name).
			Str("from", cb.state.String()).
			Str("to", to.String()).
			Int("failures", cb.failures).
			Msg("circuit breaker state change")
	}
	cb.state = to
	cb.halfOpenCalls = 0
	if to == StateClosed {
		cb.failures = 0
		cb.successes = 0
	}
	metrics.RecordCircuitBreakerState(cb.name, to.gauge())
}

// BreakerFromConfig builds the circuit breaker settings from service configuration.
func BreakerFromConfig(cfg *config.Config) CircuitBreakerConfig {
	out := DefaultCircuitBreakerConfig()
	out.Enabled = cfg.CBEnabled
	if cfg.CBFailureThreshold > 0 {
		out.FailureThreshold = cfg.CBFailureThreshold
	}
	if cfg.CBSuccessThreshold > 0 {
		out.SuccessThreshold = cfg.CBSuccessThreshold
	}
	if cfg.CBTimeout > 0 {
		out.Timeout = cfg.CBTimeout
	}
	if cfg.CBMaxHalfOpen > 0 {
		out.MaxHalfOpenCalls = cfg.CBMaxHalfOpen
	}
	return out
}
