package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Fatalf("unexpected MaxAttempts: %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay <= 0 || cfg.MaxDelay <= 0 {
		t.Fatalf("delays must be positive: %+v", cfg)
	}
	if cfg.BackoffFactor <= 1 {
		t.Fatalf("backoff factor should be > 1: %f", cfg.BackoffFactor)
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	logger := log.New().WithField("test", "retry")
	ctx := context.Background()

	t.Run("retry then success", func(t *testing.T) {
		attempts := 0
		err := retry(ctx, cfg, logger, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset")
			}
			return nil
		})
		if err != nil || attempts != 3 {
			t.Fatalf("expected success on third attempt, got attempts=%d err=%v", attempts, err)
		}
	})

	t.Run("client error is final", func(t *testing.T) {
		attempts := 0
		err := retry(ctx, cfg, logger, func() error {
			attempts++
			return &StatusError{Code: 401}
		})
		if attempts != 1 {
			t.Fatalf("expected single attempt for 4xx, got %d", attempts)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
	})

	t.Run("exhausted retries", func(t *testing.T) {
		attempts := 0
		err := retry(ctx, cfg, logger, func() error {
			attempts++
			return &StatusError{Code: 503}
		})
		if err == nil || attempts != cfg.MaxAttempts {
			t.Fatalf("expected %d attempts, got %d (err=%v)", cfg.MaxAttempts, attempts, err)
		}
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 2}
		attempts := 0
		err := retry(ctx, slow, logger, func() error {
			attempts++
			cancel()
			return errors.New("timeout")
		})
		if !errors.Is(err, context.Canceled) || attempts != 1 {
			t.Fatalf("expected context.Canceled after one attempt, got attempts=%d err=%v", attempts, err)
		}
	})
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: errors.New("dial tcp: refused"), want: true},
		{err: &StatusError{Code: 500}, want: true},
		{err: fmt.Errorf("wrapped: %w", &StatusError{Code: 502}), want: true},
		{err: &StatusError{Code: 404}, want: false},
		{err: context.DeadlineExceeded, want: false},
		{err: fmt.Errorf("call: %w", context.Canceled), want: false},
	}
	for _, tc := range cases {
		if got := shouldRetry(tc.err); got != tc.want {
			t.Fatalf("shouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker(2, 20*time.Millisecond, nil)
	if cb.logger == nil {
		t.Fatal("expected default logger")
	}
	var transitions []CircuitState
	cb.OnStateChange(func(s CircuitState) { transitions = append(transitions, s) })

	if err := cb.Execute(context.Background(), "ok", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("unexpected state after success: %v", cb.State())
	}

	if err := cb.Execute(context.Background(), "fail-1", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected first failure")
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("breaker should still be closed after first failure, got %v", cb.State())
	}
	if err := cb.Execute(context.Background(), "fail-2", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected second failure")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("breaker should be open, got %v", cb.State())
	}

	called := false
	if err := cb.Execute(context.Background(), "blocked", func() error { called = true; return nil }); !errors.Is(err, ErrBreakerOpen) || called {
		t.Fatalf("expected open breaker to reject without calling fn, got err=%v called=%v", err, called)
	}

	cb.now = func() time.Time { return time.Now().Add(time.Second) }
	if err := cb.Execute(context.Background(), "half-open-success", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error in half-open: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed state after half-open success, got %v", cb.State())
	}

	want := []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, log.New().WithField("test", "breaker"))
	_ = cb.Execute(context.Background(), "fail", func() error { return errors.New("boom") })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	cb.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := cb.Execute(context.Background(), "half-open-fail", func() error { return errors.New("still failing") }); err == nil {
		t.Fatal("expected error in half-open failure")
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state after half-open failure, got %v", cb.State())
	}
	if CircuitHalfOpen.String() != "half-open" || CircuitOpen.String() != "open" {
		t.Fatal("unexpected state names")
	}
}

func TestCircuitBreakerIgnoresCallerErrors(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, log.New().WithField("test", "breaker"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, "bogus-ref", func() error { return &StatusError{Code: 404} }); err == nil {
			t.Fatal("expected 404 to be returned to the caller")
		}
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("4xx answers must not open the breaker, got %v", cb.State())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for i := 0; i < 5; i++ {
		_ = cb.Execute(cancelled, "cancelled", func() error { return cancelled.Err() })
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("caller cancellation must not open the breaker, got %v", cb.State())
	}

	_ = cb.Execute(ctx, "fail-1", func() error { return &StatusError{Code: 503} })
	_ = cb.Execute(ctx, "fail-2", func() error { return errors.New("connection reset") })
	if cb.State() != CircuitOpen {
		t.Fatalf("5xx and transport errors must open the breaker, got %v", cb.State())
	}
}

func TestCircuitBreakerClientErrorKeepsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, log.New().WithField("test", "breaker"))
	ctx := context.Background()

	_ = cb.Execute(ctx, "fail", func() error { return errors.New("timeout") })
	_ = cb.Execute(ctx, "bogus-ref", func() error { return &StatusError{Code: 400} })
	_ = cb.Execute(ctx, "fail", func() error { return errors.New("timeout") })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open breaker after two gateway failures, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, log.New().WithField("test", "breaker"))
	ctx := context.Background()
	_ = cb.Execute(ctx, "fail", func() error { return errors.New("boom") })
	cb.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, "trial", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	called := false
	if err := cb.Execute(ctx, "concurrent", func() error { called = true; return nil }); !errors.Is(err, ErrBreakerOpen) || called {
		t.Fatalf("expected second half-open caller to be rejected, got err=%v called=%v", err, called)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected trial error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed state after successful trial, got %v", cb.State())
	}
}

func TestCircuitBreakerNeutralTrialReleasesSlot(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, log.New().WithField("test", "breaker"))
	ctx := context.Background()
	_ = cb.Execute(ctx, "fail", func() error { return errors.New("boom") })
	cb.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if err := cb.Execute(ctx, "bogus-ref", func() error { return &StatusError{Code: 404} }); err == nil {
		t.Fatal("expected 404 from trial call")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after neutral trial, got %v", cb.State())
	}
	if err := cb.Execute(ctx, "next-trial", func() error { return nil }); err != nil {
		t.Fatalf("next caller should get the trial slot, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed state, got %v", cb.State())
	}
}
