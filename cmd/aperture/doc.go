// Package main hosts the aperture CLI entrypoint and command graph.
//
// The Cobra-based command tree starts stage workers, scans raw trees into the
// source inventory, reports queue depth, toggles demand gates, wipes derived
// artifacts, and scaffolds configuration. It centralizes configuration
// resolution and logger setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
