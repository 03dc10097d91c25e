package retry_test

import (
	"context"
	"errors"
	"testing"

	"aperture/internal/retry"
	"aperture/internal/services"
)

func TestRunExhaustsAttemptsWithCleanup(t *testing.T) {
	var invocations, cleanups int
	sup := retry.Supervisor{
		Stage:       "faceext",
		MaxAttempts: 3,
		Cleanup: func(context.Context) error {
			cleanups++
			return nil
		},
	}

	toolErr := errors.New("exit status 1")
	err := sup.Run(context.Background(), "/data/a.left.mp4", func(_ context.Context, attempt int) error {
		invocations++
		if attempt != invocations {
			t.Fatalf("attempt %d delivered on invocation %d", attempt, invocations)
		}
		return toolErr
	})

	if invocations != 3 {
		t.Fatalf("expected 3 invocations, got %d", invocations)
	}
	if cleanups != 3 {
		t.Fatalf("expected 3 cleanups, got %d", cleanups)
	}
	if !errors.Is(err, services.ErrRetryExhausted) {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	if !errors.Is(err, toolErr) {
		t.Fatalf("expected last tool failure in chain, got %v", err)
	}
}

func TestRunStopsOnFirstSuccess(t *testing.T) {
	var invocations, cleanups int
	sup := retry.Supervisor{
		MaxAttempts: 5,
		Cleanup: func(context.Context) error {
			cleanups++
			return nil
		},
	}

	err := sup.Run(context.Background(), "item", func(_ context.Context, attempt int) error {
		invocations++
		if attempt < 3 {
			return errors.New("transient tool failure")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if invocations != 3 {
		t.Fatalf("expected 3 invocations, got %d", invocations)
	}
	if cleanups != 2 {
		t.Fatalf("expected 2 cleanups, got %d", cleanups)
	}
}

func TestRunZeroValueRunsOnce(t *testing.T) {
	var invocations int
	var sup retry.Supervisor

	err := sup.Run(context.Background(), "item", func(context.Context, int) error {
		invocations++
		return errors.New("boom")
	})

	if invocations != 1 {
		t.Fatalf("expected a single invocation, got %d", invocations)
	}
	if !errors.Is(err, services.ErrRetryExhausted) {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
}

func TestRunCleanupFailureDoesNotMaskToolError(t *testing.T) {
	toolErr := errors.New("tool broke")
	sup := retry.Supervisor{
		MaxAttempts: 2,
		Cleanup: func(context.Context) error {
			return errors.New("cleanup broke")
		},
	}

	err := sup.Run(context.Background(), "item", func(context.Context, int) error {
		return toolErr
	})
	if !errors.Is(err, toolErr) {
		t.Fatalf("expected tool failure in chain, got %v", err)
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var invocations int
	sup := retry.Supervisor{MaxAttempts: 3}
	err := sup.Run(ctx, "item", func(context.Context, int) error {
		invocations++
		return nil
	})

	if invocations != 0 {
		t.Fatalf("cancelled context should skip invocations, got %d", invocations)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
