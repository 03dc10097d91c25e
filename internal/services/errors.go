package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")

	// ErrContention marks a duplicate-key conflict on a result insert: another
	// worker finished the same item first. Callers discard their result and
	// continue.
	ErrContention = errors.New("result contention")

	// ErrIntegrity marks a store/disk mismatch: the store says an artifact
	// exists but it is missing on disk. Always fatal for the worker.
	ErrIntegrity = errors.New("integrity violation")

	// ErrGateCorrupt marks an unrecognized persisted gate value. Always fatal.
	ErrGateCorrupt = errors.New("gate state corrupt")

	// ErrRetryExhausted marks an external invocation that failed on every
	// permitted attempt. Always fatal for the worker.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must terminate the whole worker process
// rather than skip to the next item. Fatal conditions indicate environment or
// configuration problems that would recur identically for every item.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrGateCorrupt),
		errors.Is(err, ErrRetryExhausted),
		errors.Is(err, ErrConfiguration):
		return true
	default:
		return false
	}
}

// IsContention reports whether an error is a duplicate-result conflict that the
// worker should discard and move past.
func IsContention(err error) bool {
	return err != nil && errors.Is(err, ErrContention)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
