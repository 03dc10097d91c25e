package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/services"
)

func TestNewWritesConsoleLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	componentLogger := logging.NewComponentLogger(logger, "decrypt")
	componentLogger.Info("source decrypted",
		logging.String("path", "/data/a.mp4"),
		logging.String("note", "two words"))
	componentLogger.Debug("suppressed below the configured level")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO", "decrypt: source decrypted", "path=/data/a.mp4", `note="two words"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line lacks %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "suppressed") {
		t.Fatalf("debug line written at info level:\n%s", line)
	}
}

func TestNewJSONRenamesCoreFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Warn("queue contention", logging.String("item", "/data/a.mp4"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, content)
	}
	if record["msg"] != "queue contention" {
		t.Fatalf("msg = %v, want queue contention", record["msg"])
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v, want warn", record["level"])
	}
	if _, ok := record["ts"].(string); !ok {
		t.Fatalf("ts missing or not a string: %v", record["ts"])
	}
	if record["item"] != "/data/a.mp4" {
		t.Fatalf("item = %v, want /data/a.mp4", record["item"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "logfmt"}); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}

func TestNewFromConfigAppendsSharedLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	logger.Info("worker started")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("shared log file missing: %v", err)
	}
	if !strings.Contains(string(content), "worker started") {
		t.Fatalf("shared log file lacks the message:\n%s", content)
	}
}

func TestWithContextCarriesStandardFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := services.WithStage(context.Background(), "faceext")
	ctx = services.WithItemKey(ctx, "/data/a_left.mp4")
	ctx = services.WithRequestID(ctx, "0f0e")

	logging.WithContext(ctx, logger).Info("claimed")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"stage=faceext", "item=/data/a_left.mp4", "correlation_id=0f0e"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line lacks %q:\n%s", want, line)
		}
	}
}
