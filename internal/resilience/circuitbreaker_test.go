package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "nifty-strangler/internal/errors"
)

var errBoom = errors.New("boom")

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()
	fail := func(context.Context) error { return errBoom }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want errBoom", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, errs.ErrCircuitOpen) || called {
		t.Errorf("open circuit: err = %v, called = %v", err, called)
	}
}

func TestCircuitHalfOpenRecovers(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(context.Context) error { return errBoom })
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	now = now.Add(2 * time.Second)
	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("half-open probe: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return notFound })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
}

func TestExecuteHonoursContextDeadline(t *testing.T) {
	cb := NewCircuitBreaker("test", DefaultCircuitBreakerConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := ExecuteWithResult(cb, ctx, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if got := cb.Stats().TotalTimeouts; got != 1 {
		t.Errorf("TotalTimeouts = %d, want 1", got)
	}
}
