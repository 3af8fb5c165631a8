package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky", ErrTransient)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryExhaustion(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		return fmt.Errorf("%w: down", ErrTransient)
	})
	if err == nil {
		t.Fatal("expected failure after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !IsTransientError(err) {
		t.Errorf("wrapped error lost its class: %v", err)
	}
}

func TestWithRetryStopsOnTerminalErrors(t *testing.T) {
	for _, terminal := range []error{ErrSession, ErrValidation, ErrParse} {
		calls := 0
		err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func() error {
			calls++
			return fmt.Errorf("%w: terminal", terminal)
		})
		if !errors.Is(err, terminal) {
			t.Fatalf("terminal error class lost: %v", err)
		}
		if calls != 1 {
			t.Errorf("%v retried %d times, want 1 call", terminal, calls)
		}
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, RetryPolicy{Attempts: 3, Backoff: time.Hour}, func() error {
		return fmt.Errorf("%w: down", ErrTransient)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
