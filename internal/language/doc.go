// Package language normalizes the language identifiers that flow through the
// pipeline: the configured transcription language, the language the
// transcription tool detects, and the tags ffprobe reports on audio streams.
// Everything collapses to ISO 639-1 so the same interview never records
// "eng", "en", and "English" as three different values.
package language
