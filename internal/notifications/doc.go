// Package notifications delivers operator alerts via ntfy.
//
// Workers and stages publish through the Notifier interface; the default
// implementation posts to the topic configured in config.toml and degrades
// to a no-op when no topic is set, so callers never need to guard delivery.
// The events cover the moments an unattended pipeline needs a human: a
// worker stopping on a fatal error, a stream rejected by face QC, and a
// finished interview report.
package notifications
