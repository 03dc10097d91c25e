package main

import (
	"testing"
)

func TestGateCommandsRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)

	// A never-written gate initializes to enabled on first check.
	out, _, err := runCLI(t, env, "gate", "check", "decryption")
	if err != nil {
		t.Fatalf("gate check failed: %v", err)
	}
	requireContains(t, out, "Gate decryption is enabled")

	out, _, err = runCLI(t, env, "gate", "complete", "decryption")
	if err != nil {
		t.Fatalf("gate complete failed: %v", err)
	}
	requireContains(t, out, "Gate decryption disabled")

	out, _, err = runCLI(t, env, "gate", "check", "decryption")
	if err != nil {
		t.Fatalf("gate check after complete failed: %v", err)
	}
	requireContains(t, out, "Gate decryption is disabled")

	out, _, err = runCLI(t, env, "gate", "request", "decryption")
	if err != nil {
		t.Fatalf("gate request failed: %v", err)
	}
	requireContains(t, out, "Gate decryption enabled")

	out, _, err = runCLI(t, env, "gate", "check", "decryption")
	if err != nil {
		t.Fatalf("gate check after request failed: %v", err)
	}
	requireContains(t, out, "Gate decryption is enabled")
}
