package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aperture/internal/logging"
)

func writeLogFile(t *testing.T, env *cliTestEnv, content string) string {
	t.Helper()
	logPath := filepath.Join(env.cfg.Paths.LogDir, logging.LogFileName)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	return logPath
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	writeLogFile(t, env, "first\nsecond\nthird\n")

	out, _, err := runCLI(t, env, "logs", "--lines", "2")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "third")
	if strings.Contains(out, "first") {
		t.Fatalf("expected only trailing lines, got %q", out)
	}
}

func TestLogsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "logs")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	requireContains(t, out, "No log entries available")
}

func TestLogsFollowStreamsAppends(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := writeLogFile(t, env, "first\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", env.configPath, "logs", "--follow"})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()

	time.Sleep(100 * time.Millisecond)
	if err := appendLine(logPath, "followed"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	time.Sleep(700 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("logs --follow execute: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("logs --follow did not exit")
	}
	requireContains(t, stdout.String(), "followed")
}
