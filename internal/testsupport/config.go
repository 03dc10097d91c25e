package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"aperture/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, writes a dummy decryption key file, and applies
// any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataRoot = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LockDir = filepath.Join(base, "locks")
	cfgVal.Store.Path = filepath.Join(base, "store", "aperture.db")
	cfgVal.Decrypt.KeyFile = filepath.Join(base, "keys", "master.key")
	WriteFile(t, cfgVal.Decrypt.KeyFile, 32)

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStudies restricts the test config to the given study list.
func WithStudies(studies ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Studies = studies
	}
}

// WithSnooze sets the idle backoff interval in seconds. Zero selects one-shot
// semantics.
func WithSnooze(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.SnoozeSeconds = seconds
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the pipeline's default external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"openssl", "ffprobe", "ffmpeg", "FeatureExtraction", "whisperx"}
		}
		StubBinaries(b.t, b.baseDir, names...)
	}
}

// StubBinaries writes exit-0 shell stubs for each name under baseDir/bin and
// prepends that directory to PATH for the duration of the test.
func StubBinaries(t testing.TB, baseDir string, names ...string) string {
	t.Helper()

	binDir := filepath.Join(baseDir, "bin")
	for _, name := range names {
		WriteScript(t, binDir, name, "#!/bin/sh\nexit 0\n")
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
	return binDir
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataRoot)
}
