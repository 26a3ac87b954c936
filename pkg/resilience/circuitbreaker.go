package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the guarded call while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig controls when the breaker trips and recovers.
// Zero values mean 5 consecutive failures to trip and 30s before a probe.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// CircuitBreaker counts consecutive failures of a guarded call and, once
// the threshold is reached, rejects further calls until ResetTimeout has
// passed. The first call after the cool-down acts as the probe: success
// closes the breaker, failure re-opens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed CircuitBreaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker is open, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// allow decides whether a call may proceed right now.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open() {
		return nil
	}
	waited := time.Since(cb.openedAt)
	if waited < cb.cfg.ResetTimeout {
		return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, (cb.cfg.ResetTimeout - waited).Round(time.Second))
	}
	if cb.probing {
		return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
	}
	cb.probing = true
	cb.logger.Info("circuit half-open, probing")
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.open() {
			cb.logger.Info("circuit closed, call recovered")
		}
		cb.failures = 0
		cb.openedAt = time.Time{}
		cb.probing = false
		return
	}

	cb.failures++
	cb.probing = false
	if cb.open() {
		// Failed probe: restart the cool-down.
		cb.openedAt = time.Now()
		cb.logger.Warn("circuit re-opened, probe failed")
		return
	}
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = time.Now()
		cb.logger.Warn("circuit opened",
			"consecutive_failures", cb.failures,
			"reset_timeout", cb.cfg.ResetTimeout,
		)
	}
}

// open reports whether the breaker has tripped. Caller holds cb.mu.
func (cb *CircuitBreaker) open() bool {
	return !cb.openedAt.IsZero()
}
