package main

import (
	"path/filepath"
	"strings"
	"testing"

	"aperture/internal/naming"
	"aperture/internal/oplock"
	"aperture/internal/testsupport"
)

func TestIngestRegistersAndFlagsAmbiguity(t *testing.T) {
	env := setupCLITestEnv(t)

	rawRoot := naming.RawRoot(env.cfg.Paths.DataRoot, "STUDYA")
	alphaDir := filepath.Join(rawRoot, "open", "interview_alpha")
	testsupport.WriteFile(t, filepath.Join(alphaDir, "alpha_cam.mp4.lock"), 64)
	testsupport.WriteFile(t, filepath.Join(alphaDir, "alpha_audio.wav.lock"), 64)

	// Two videos for the same interview and tag stay parked until an
	// operator picks a primary.
	betaDir := filepath.Join(rawRoot, "open", "interview_beta")
	testsupport.WriteFile(t, filepath.Join(betaDir, "beta_cam_a.mp4.lock"), 64)
	testsupport.WriteFile(t, filepath.Join(betaDir, "beta_cam_b.mp4.lock"), 64)

	out, _, err := runCLI(t, env, "ingest")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	requireContains(t, out, "Scanned 4 encrypted files: 4 registered, 0 skipped")
	requireContains(t, out, "2 sources share an interview and tag")
	requireContains(t, out, "beta_cam_a.mp4.lock")
	requireContains(t, out, "beta_cam_b.mp4.lock")
	if strings.Contains(out, "alpha_cam.mp4.lock") {
		t.Fatalf("unambiguous source listed for decision: %q", out)
	}
}

func TestIngestRefusesWhenLockHeld(t *testing.T) {
	env := setupCLITestEnv(t)

	lock, err := oplock.Acquire(env.cfg, oplock.Ingest)
	if err != nil {
		t.Fatalf("oplock.Acquire failed: %v", err)
	}
	defer lock.Release()

	_, _, err = runCLI(t, env, "ingest")
	if err == nil || !strings.Contains(err.Error(), "another process holds") {
		t.Fatalf("expected held-lock error, got %v", err)
	}
}
