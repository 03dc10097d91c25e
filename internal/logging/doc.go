// Package logging builds the slog loggers shared by every worker and CLI
// command: a human-readable console handler for terminals, a JSON handler for
// machine consumption, and a shared append-only log file under the configured
// log directory. It also defines the standardized structured field keys so
// stage, study, and item identifiers stay greppable across components.
package logging
