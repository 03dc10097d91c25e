// Package logs provides file tailing with bounded memory for the shared
// worker log.
//
// It supports a negative offset for "last N lines" reads and a polling
// follow mode that returns as soon as new lines land, so `aperture logs
// --follow` stays responsive without holding the file open. Callers supply
// a context so background polling stops cleanly when the CLI exits.
package logs
