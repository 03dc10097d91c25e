// Package procscan inspects the live process table so workers can tell when
// another process is already handling a resource. Detection is best-effort:
// processes appear and vanish mid-scan, and that is fine because the store's
// uniqueness constraints remain the real arbiter.
package procscan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Scanner checks process argv lines for resource keys. The zero value scans
// /proc and excludes the calling process.
type Scanner struct {
	ProcRoot string // defaults to /proc
	SelfPID  int    // defaults to os.Getpid()
}

// IsRunning reports whether any other live process carries key in its argv.
// Entries that vanish mid-scan are skipped.
func (s Scanner) IsRunning(key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	root := s.ProcRoot
	if root == "" {
		root = "/proc"
	}
	self := s.SelfPID
	if self == 0 {
		self = os.Getpid()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return false, fmt.Errorf("read process table: %w", err)
	}

	needle := []byte(key)
	for _, entry := range entries {
		pid, convErr := strconv.Atoi(entry.Name())
		if convErr != nil || pid == self {
			continue
		}
		cmdline, readErr := os.ReadFile(filepath.Join(root, entry.Name(), "cmdline"))
		if readErr != nil {
			continue
		}
		if bytes.Contains(cmdline, needle) {
			return true, nil
		}
	}
	return false, nil
}
