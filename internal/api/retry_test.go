package api

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	retries := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		Logger:      testLogger(),
		OnRetry:     func(int, error) { retries++ },
	}

	calls := 0
	attempts, err := policy.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		if attempt < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if retries != 2 {
		t.Errorf("OnRetry called %d times, want 2", retries)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, Logger: testLogger()}

	calls := 0
	lastErr := errors.New("503 service unavailable")
	attempts, err := policy.Do(context.Background(), func(int) error {
		calls++
		return lastErr
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("Do() error = %v, should wrap the last attempt's error", err)
	}
	if calls != 4 || attempts != 4 {
		t.Errorf("calls = %d, attempts = %d, want 4 and 4", calls, attempts)
	}
}

func TestRetryPolicy_Permanent(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, Logger: testLogger()}

	stop := errors.New("stopped")
	calls := 0
	_, err := policy.Do(context.Background(), func(int) error {
		calls++
		return Permanent(stop)
	})
	if err != stop {
		t.Errorf("Do() error = %v, want the unwrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 10, Logger: testLogger()}

	calls := 0
	_, err := policy.Do(ctx, func(int) error {
		calls++
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("cancellation should not be reported as exhausted retries")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	_, err := RetryPolicy{Logger: testLogger()}.Do(context.Background(), func(int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Do() error = %v, want ErrRetriesExhausted", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
