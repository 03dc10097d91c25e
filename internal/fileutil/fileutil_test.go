package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dst := filepath.Join(dir, "nested", "deep", "dst.bin")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("destination content = %q", data)
	}
}

func TestMoveFileRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dst := filepath.Join(dir, "out", "dst.bin")
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present after move: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("destination content = %q", data)
	}
}

func TestTreeSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "one.bin"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "two.bin"), make([]byte, 32), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	total, err := TreeSize(dir)
	if err != nil {
		t.Fatalf("TreeSize failed: %v", err)
	}
	if total != 42 {
		t.Fatalf("TreeSize = %d, want 42", total)
	}

	missing, err := TreeSize(filepath.Join(dir, "nope"))
	if err != nil {
		t.Fatalf("TreeSize on missing root failed: %v", err)
	}
	if missing != 0 {
		t.Fatalf("TreeSize missing root = %d, want 0", missing)
	}
}
