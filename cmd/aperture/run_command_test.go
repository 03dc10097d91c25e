package main

import (
	"strings"
	"testing"

	"aperture/internal/logging"
	"aperture/internal/testsupport"
)

func TestBuildStageHandlerCoversPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	for _, name := range stageNames() {
		handler, err := buildStageHandler(name, cfg, st, "", logger)
		if err != nil {
			t.Fatalf("buildStageHandler(%s) failed: %v", name, err)
		}
		if handler.Name() != name {
			t.Fatalf("expected handler name %q, got %q", name, handler.Name())
		}
	}

	if _, err := buildStageHandler("bogus", cfg, st, "", logger); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestRunRejectsUnknownStage(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "run", "nosuchstage", "--once")
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestRunOnceExitsWhenQueueEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "run", "metadata", "--once"); err != nil {
		t.Fatalf("run metadata --once failed: %v", err)
	}
}
