package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aperture/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace_ReportsHumanReadable(t *testing.T) {
	result := CheckFreeSpace("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass on the test filesystem, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "free") {
		t.Fatalf("detail %q does not report free space", result.Detail)
	}
}

func TestCheckFreeSpace_MissingPath(t *testing.T) {
	result := CheckFreeSpace("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckStore(t *testing.T) {
	ctx := context.Background()

	result := CheckStore(ctx, nil)
	if result.Passed {
		t.Fatal("expected failure for a nil store")
	}

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	result = CheckStore(ctx, st)
	if !result.Passed {
		t.Fatalf("expected pass for an open store, got: %s", result.Detail)
	}
}

func TestRunAllCoversEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	for _, dir := range []string{cfg.Paths.DataRoot, cfg.Paths.LogDir, cfg.Paths.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	st := testsupport.MustOpenStore(t, cfg)

	results := RunAll(context.Background(), cfg, st)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if !AllPassed(results) {
		for _, result := range results {
			t.Logf("%s: passed=%v detail=%s", result.Name, result.Passed, result.Detail)
		}
		t.Fatal("expected every environment check to pass")
	}
}

func TestCheckSystemDepsFlagsMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.FaceExt.Binary = "definitely-not-installed"

	statuses := CheckSystemDeps(cfg)
	var missing, available int
	for _, status := range statuses {
		if status.Available {
			available++
			continue
		}
		missing++
		if status.Name != "Face extractor" {
			t.Fatalf("unexpected missing dependency: %+v", status)
		}
		if status.Detail == "" {
			t.Fatal("expected detail for the missing binary")
		}
	}
	if missing != 1 {
		t.Fatalf("missing = %d, want 1", missing)
	}
	if available != len(statuses)-1 {
		t.Fatalf("available = %d, want %d", available, len(statuses)-1)
	}
}

func TestCheckSystemDepsSkipsOverlayWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	cfg.FaceExt.Overlay = true
	withOverlay := len(CheckSystemDeps(cfg))
	cfg.FaceExt.Overlay = false
	withoutOverlay := len(CheckSystemDeps(cfg))

	if withOverlay != withoutOverlay+1 {
		t.Fatalf("overlay renderer should add one requirement: %d vs %d", withOverlay, withoutOverlay)
	}
}
