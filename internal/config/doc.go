// Package config loads, normalizes, and validates the TOML configuration
// shared by every stage worker and CLI command. Loading never creates files;
// use CreateSample for that. All path fields come back expanded and absolute.
package config
