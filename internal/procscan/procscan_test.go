package procscan_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aperture/internal/procscan"
)

func writeProcEntry(t *testing.T, root, pid string, argv ...string) {
	t.Helper()

	dir := filepath.Join(root, pid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir proc entry: %v", err)
	}
	var cmdline []byte
	for _, arg := range argv {
		cmdline = append(cmdline, []byte(arg)...)
		cmdline = append(cmdline, 0)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), cmdline, 0o644); err != nil {
		t.Fatalf("write cmdline: %v", err)
	}
}

func TestIsRunningFindsArgvKey(t *testing.T) {
	root := t.TempDir()
	writeProcEntry(t, root, "101", "FeatureExtraction", "-f", "/data/a.left.mp4")
	writeProcEntry(t, root, "102", "sleep", "60")

	scanner := procscan.Scanner{ProcRoot: root, SelfPID: 1}

	busy, err := scanner.IsRunning("/data/a.left.mp4")
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !busy {
		t.Fatal("expected key to be detected in process table")
	}

	busy, err = scanner.IsRunning("/data/b.right.mp4")
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if busy {
		t.Fatal("unrelated key should not be detected")
	}
}

func TestIsRunningExcludesSelf(t *testing.T) {
	root := t.TempDir()
	writeProcEntry(t, root, "101", "aperture", "run", "faceext", "/data/a.left.mp4")

	scanner := procscan.Scanner{ProcRoot: root, SelfPID: 101}
	busy, err := scanner.IsRunning("/data/a.left.mp4")
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if busy {
		t.Fatal("scanner must not report its own process")
	}
}

func TestIsRunningSkipsNonProcessEntries(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sys"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "cpuinfo"), []byte("model"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "203"), 0o755); err != nil {
		t.Fatalf("mkdir pid without cmdline: %v", err)
	}

	scanner := procscan.Scanner{ProcRoot: root, SelfPID: 1}
	busy, err := scanner.IsRunning("anything")
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if busy {
		t.Fatal("no process entry should have matched")
	}
}

func TestIsRunningEmptyKey(t *testing.T) {
	scanner := procscan.Scanner{ProcRoot: t.TempDir()}
	busy, err := scanner.IsRunning("")
	if err != nil || busy {
		t.Fatalf("empty key should be a quiet no, got %v, %v", busy, err)
	}
}

func TestMarkerVisibleUntilStopped(t *testing.T) {
	key := filepath.Join(t.TempDir(), "stream.left.mp4")

	marker, err := procscan.SpawnMarker(key, time.Hour)
	if err != nil {
		t.Fatalf("SpawnMarker failed: %v", err)
	}
	defer marker.Stop()

	scanner := procscan.Scanner{}
	busy, err := scanner.IsRunning(key)
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !busy {
		t.Fatal("marker should be visible while running")
	}

	marker.Stop()
	deadline := time.Now().Add(5 * time.Second)
	for {
		busy, err = scanner.IsRunning(key)
		if err != nil {
			t.Fatalf("IsRunning after stop failed: %v", err)
		}
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("marker still visible after stop")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
