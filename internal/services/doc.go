// Package services defines shared utilities consumed by the pipeline stage
// handlers and operator tooling.
//
// Key responsibilities:
//   - Context helpers that stamp stage names, item keys, study codes, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent outcomes (retryable vs fatal vs contention).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
