package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"chatcore-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_requests_total",
		Help: "Total number of guarded operations by target and outcome",
	}, []string{"target", "operation", "status"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resilience_errors_total",
		Help: "Total number of guarded operation errors by type",
	}, []string{"target", "operation", "error_type"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resilience_circuit_breaker_state",
		Help: "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
	}, []string{"target"})
)

// Config tunes retries and the breaker
type Config struct {
	MaxAttempts      int
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
	// OperationTimeout bounds all attempts of one Execute call. Zero means the caller's context only.
	OperationTimeout time.Duration
}

// DefaultConfig is used for the blob store
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialInterval:  100 * time.Millisecond,
		MaxInterval:      2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
		OperationTimeout: 30 * time.Second,
	}
}

// Breaker wraps calls to one downstream target with retry, backoff and a circuit breaker
type Breaker struct {
	target string
	cfg    Config

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time
}

// New creates a breaker for the named target
func New(target string, cfg Config) *Breaker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	circuitBreakerState.WithLabelValues(target).Set(0)
	return &Breaker{
		target: target,
		cfg:    cfg,
		state:  CircuitBreakerClosed,
		now:    time.Now,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. It does not count against the breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Execute runs fn until it succeeds, returns a permanent error, or attempts run out
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if !b.allow() {
			requestsTotal.WithLabelValues(b.target, operation, "circuit_open").Inc()
			logger.Warn("Circuit breaker open, request rejected",
				zap.String("target", b.target),
				zap.String("operation", operation))
			return fmt.Errorf("%s %s: %w", b.target, operation, ErrCircuitOpen)
		}

		if attempt > 1 {
			logger.Warn("Retrying operation",
				zap.String("target", b.target),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}

		err := fn(ctx)
		if err == nil {
			b.onSuccess()
			requestsTotal.WithLabelValues(b.target, operation, "success").Inc()
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			requestsTotal.WithLabelValues(b.target, operation, "permanent").Inc()
			return perm.err
		}

		lastErr = err
		errorsTotal.WithLabelValues(b.target, operation, classifyError(err)).Inc()
		b.onFailure(operation)

		if attempt == b.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			requestsTotal.WithLabelValues(b.target, operation, "timeout").Inc()
			return fmt.Errorf("%s %s: %w (last error: %v)", b.target, operation, ctx.Err(), lastErr)
		case <-time.After(b.backoff(attempt)):
		}
	}

	requestsTotal.WithLabelValues(b.target, operation, "failure").Inc()
	return fmt.Errorf("%s %s failed after %d attempts: %w", b.target, operation, b.cfg.MaxAttempts, lastErr)
}

// State returns the current circuit breaker state
func (b *Breaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) backoff(attempt int) time.Duration {
	d := b.cfg.InitialInterval << (attempt - 1)
	if d > b.cfg.MaxInterval || d <= 0 {
		d = b.cfg.MaxInterval
	}
	return d
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitBreakerOpen {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.setState(CircuitBreakerHalfOpen)
		logger.Info("Circuit breaker half-open", zap.String("target", b.target))
		return true
	}
	return false
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != CircuitBreakerClosed {
		b.setState(CircuitBreakerClosed)
		logger.Info("Circuit breaker closed", zap.String("target", b.target))
	}
}

func (b *Breaker) onFailure(operation string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker opened",
				zap.String("target", b.target),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures))
		}
		b.openedAt = b.now()
		b.setState(CircuitBreakerOpen)
	}
}

// setState must be called with mu held
func (b *Breaker) setState(s CircuitBreakerState) {
	b.state = s
	switch s {
	case CircuitBreakerClosed:
		circuitBreakerState.WithLabelValues(b.target).Set(0)
	case CircuitBreakerHalfOpen:
		circuitBreakerState.WithLabelValues(b.target).Set(1)
	case CircuitBreakerOpen:
		circuitBreakerState.WithLabelValues(b.target).Set(2)
	}
}

// classifyError classifies errors for metrics labels
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host"):
		return "dns"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "access denied"):
		return "permission"
	default:
		return "unknown"
	}
}
