package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrBreakerOpen возвращается, пока circuit breaker не пропускает вызовы к шлюзу.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// RetryConfig конфигурация повторов запроса к шлюзу.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// retry выполняет fn, пока она возвращает повторяемую ошибку и не исчерпаны попытки.
func retry(ctx context.Context, cfg RetryConfig, logger *log.Entry, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		logger.WithError(lastErr).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("gateway call failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// shouldRetry повторяет сетевые сбои и 5xx; ответы 4xx и отмена контекста окончательны.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return true
}

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker размыкает цепь после maxFailures подряд сбоев шлюза
// и через resetTimeout пропускает один пробный вызов. Безопасен для конкурентного использования.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	onChange     func(CircuitState)
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
	probing     bool
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        CircuitClosed,
	}
}

// OnStateChange регистрирует колбэк смены состояния (например, для метрик).
func (cb *CircuitBreaker) OnStateChange(fn func(CircuitState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через circuit breaker. Сбоем считаются только
// сетевые ошибки и 5xx; ответы 4xx и отмена ctx вызывающим счётчик не меняют.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func() error) error {
	trial, err := cb.allow(operation)
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.probing = false
	}
	switch {
	case err == nil:
		if cb.state == CircuitHalfOpen {
			cb.logger.WithField("operation", operation).Info("circuit breaker closed")
			cb.setState(CircuitClosed)
		}
		cb.failures = 0
	case gatewayFailure(ctx, err):
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != CircuitOpen {
				cb.logger.WithFields(log.Fields{
					"operation": operation,
					"failures":  cb.failures,
				}).Warn("circuit breaker opened")
			}
			cb.setState(CircuitOpen)
		}
	}
	return err
}

// allow пропускает вызов; trial = true для единственного вызова в half-open.
func (cb *CircuitBreaker) allow(operation string) (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		return false, nil
	case CircuitHalfOpen:
		if cb.probing {
			return false, ErrBreakerOpen
		}
	default:
		if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
			return false, ErrBreakerOpen
		}
		cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		cb.setState(CircuitHalfOpen)
	}
	cb.probing = true
	return true, nil
}

// gatewayFailure отделяет сбой шлюза от ошибок запроса и отмены вызывающим.
func gatewayFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return true
}

// setState вызывается под cb.mu.
func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}
	cb.state = state
	if cb.onChange != nil {
		cb.onChange(state)
	}
}
