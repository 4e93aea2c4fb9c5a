package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts per request
	DefaultMaxAttempts = 10
	// DefaultRetryPause is the default fixed pause between attempts
	DefaultRetryPause = 20 * time.Second
)

// ErrRetriesExhausted is returned once every attempt of a request has failed
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RetryPolicy retries a whole request a bounded number of times with a fixed pause.
// Each attempt starts from scratch; nothing from a failed attempt is carried over.
type RetryPolicy struct {
	MaxAttempts int
	Pause       time.Duration
	Logger      *slog.Logger
	// OnRetry is called before every attempt after the first
	OnRetry func(attempt int, lastErr error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is cancelled or attempts
// run out. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr)
			}
			logger.Warn("Retrying streaming request",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"pause", p.Pause,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(p.Pause):
			}
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return attempt, err
		}
		lastErr = err
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}
