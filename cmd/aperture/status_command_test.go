package main

import (
	"testing"
)

func TestStatusPlainListsEveryStage(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "status", "--plain")
	if err != nil {
		t.Fatalf("status --plain failed: %v", err)
	}
	for _, stage := range stageNames() {
		requireContains(t, out, stage+"\t0\t0")
	}
	requireContains(t, out, "gate:decryption\tenabled")
}

func TestStageLabel(t *testing.T) {
	cases := map[string]string{
		"decrypt":    "Decrypt",
		"transcribe": "Transcribe",
		"quickqc":    "Quick QC",
		"faceext":    "Face extract",
		"faceqc":     "Face QC",
		"faceload":   "Face load",
	}
	for name, want := range cases {
		if got := stageLabel(name); got != want {
			t.Fatalf("stageLabel(%q) = %q, want %q", name, got, want)
		}
	}
}
