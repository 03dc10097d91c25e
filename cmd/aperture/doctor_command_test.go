package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"aperture/internal/testsupport"
)

func TestDoctorPassesWithStubbedTools(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "doctor")
	if err != nil {
		t.Fatalf("doctor failed: %v\noutput:\n%s", err, out)
	}
	requireContains(t, out, "All checks passed")
}

func TestDoctorFlagsMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStudies("STUDYA"),
		testsupport.WithStubbedBinaries(),
	)
	cfg.Transcribe.Binary = "definitely-not-installed"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	env := &cliTestEnv{cfg: cfg, configPath: configPath}

	out, _, err := runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, err.Error(), "1 failing checks")
	requireContains(t, out, "FAIL")
	requireContains(t, out, "definitely-not-installed")
}

func TestDoctorChecksNotificationDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStudies("STUDYA"),
		testsupport.WithStubbedBinaries(),
	)
	cfg.Notify.Topic = server.URL
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	env := &cliTestEnv{cfg: cfg, configPath: configPath}

	out, _, err := runCLI(t, env, "doctor")
	if err != nil {
		t.Fatalf("doctor failed: %v\noutput:\n%s", err, out)
	}
	requireContains(t, out, "Notifications:")
	requireContains(t, out, "ntfy delivery")
	requireContains(t, out, "All checks passed")
}

func TestDoctorFlagsUnreachableNotifyTopic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	topic := server.URL
	server.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithStudies("STUDYA"),
		testsupport.WithStubbedBinaries(),
	)
	cfg.Notify.Topic = topic
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	env := &cliTestEnv{cfg: cfg, configPath: configPath}

	out, _, err := runCLI(t, env, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, err.Error(), "1 failing checks")
	requireContains(t, out, "ntfy delivery")
}
