// Package retry bounds external tool invocations and cleans up partial
// output between attempts.
package retry

import (
	"context"
	"fmt"
	"log/slog"

	"aperture/internal/logging"
	"aperture/internal/services"
)

// Supervisor drives one item's tool invocation through bounded attempts.
// MaxAttempts counts total invocations, not re-tries: MaxAttempts of 3 means
// the tool runs at most three times. The zero value runs once.
//
// Supervisor is a plain value: construct one per item, no shared state.
type Supervisor struct {
	Stage       string
	MaxAttempts int
	Cleanup     func(ctx context.Context) error
	Logger      *slog.Logger
}

// Run invokes fn until it succeeds or attempts are exhausted. Attempts are
// numbered from 1. Every failed attempt triggers Cleanup so the next attempt
// starts from scratch; cleanup failures are logged and do not stop the retry
// cycle. Exhaustion returns services.ErrRetryExhausted wrapping the last
// failure, which the worker treats as fatal.
func (s Supervisor) Run(ctx context.Context, item string, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := s.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		logger.Warn("attempt failed",
			logging.String(logging.FieldItem, item),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", maxAttempts),
			logging.Error(lastErr))

		if s.Cleanup != nil {
			if cleanupErr := s.Cleanup(ctx); cleanupErr != nil {
				logger.Warn("cleanup after failed attempt errored",
					logging.String(logging.FieldItem, item),
					logging.Error(cleanupErr))
			}
		}
	}

	return services.Wrap(services.ErrRetryExhausted, s.Stage, "run tool",
		fmt.Sprintf("%s after %d attempts", item, maxAttempts), lastErr)
}
