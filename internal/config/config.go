package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by every worker.
type Paths struct {
	// DataRoot is the boundary directory holding PROTECTED/<study> and
	// GENERAL/<study> trees. Cascading wipes never ascend past it.
	DataRoot string `toml:"data_root"`
	LogDir   string `toml:"log_dir"`
	LockDir  string `toml:"lock_dir"`
}

// Store contains configuration for the shared SQLite store.
type Store struct {
	Path string `toml:"path"`
}

// Workflow contains poll-loop timing for stage workers.
type Workflow struct {
	// SnoozeSeconds is the idle backoff. Zero means one-shot mode: a worker
	// with nothing to do exits 0 instead of sleeping. Re-read from the config
	// file at every backoff so operators can retune without restarts.
	SnoozeSeconds      int `toml:"snooze_seconds"`
	ErrorRetrySeconds  int `toml:"error_retry_seconds"`
	InterruptGraceSecs int `toml:"interrupt_grace_seconds"`
}

// Decrypt contains configuration for the decryption stage.
type Decrypt struct {
	Binary  string `toml:"binary"`
	KeyFile string `toml:"key_file"`
	// Quota bounds how many files one gate cycle may decrypt before the gate
	// is completed. Re-read each cycle.
	Quota    int `toml:"quota"`
	MaxRetry int `toml:"max_retry"`
}

// Metadata contains configuration for the media inspection stage.
type Metadata struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// QuickQC contains configuration for the quick quality-control stage.
type QuickQC struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Screenshots  int    `toml:"screenshots"`
}

// Split contains configuration for the stream-splitting stage.
type Split struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	// DefaultRole is recorded for recordings without black bars, which pass
	// through as a single stream instead of left/right crops.
	DefaultRole string `toml:"default_role"`
}

// FaceExt contains configuration for the face-feature extraction stage.
type FaceExt struct {
	Binary   string `toml:"binary"`
	MaxRetry int    `toml:"max_retry"`
	// MaxInstances bounds how many consecutive busy-resource skips a worker
	// tolerates before treating the queue as empty and gating upstream.
	MaxInstances int  `toml:"max_instances"`
	Overlay      bool `toml:"overlay"`
	// FFmpegBinary drives the overlay post-processing (frame padding, frame
	// compilation, final crop).
	FFmpegBinary string `toml:"ffmpeg_binary"`
}

// FaceQC contains thresholds for the face-feature QC stage.
type FaceQC struct {
	MinSuccessRatio float64 `toml:"min_success_ratio"`
	MinConfidence   float64 `toml:"min_confidence"`
}

// Transcribe contains configuration for the transcription stage.
type Transcribe struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	MaxRetry int    `toml:"max_retry"`
}

// Report contains configuration for the report stage.
type Report struct {
	Format string `toml:"format"`
}

// Notify configures operator push notifications. An empty topic disables
// delivery entirely.
type Notify struct {
	// Topic is the full ntfy endpoint URL, e.g. https://ntfy.sh/aperture-ops.
	Topic          string `toml:"topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all settings for the pipeline workers and CLI.
//
// Sections by subsystem:
//   - Paths: data root, logs, lock files
//   - Store: SQLite database location
//   - Workflow: snooze/backoff cadence
//   - Decrypt..Report: one section per pipeline stage
//   - Logging: format, level, retention
type Config struct {
	Studies    []string   `toml:"studies"`
	Paths      Paths      `toml:"paths"`
	Store      Store      `toml:"store"`
	Workflow   Workflow   `toml:"workflow"`
	Decrypt    Decrypt    `toml:"decrypt"`
	Metadata   Metadata   `toml:"metadata"`
	QuickQC    QuickQC    `toml:"quickqc"`
	Split      Split      `toml:"split"`
	FaceExt    FaceExt    `toml:"faceext"`
	FaceQC     FaceQC     `toml:"faceqc"`
	Transcribe Transcribe `toml:"transcribe"`
	Report     Report     `toml:"report"`
	Notify     Notify     `toml:"notify"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aperture/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aperture.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories workers need at startup. The data
// root is created best-effort so commands still load config when the shared
// storage mount is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DataRoot) != "" {
		_ = os.MkdirAll(c.Paths.DataRoot, 0o755)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
