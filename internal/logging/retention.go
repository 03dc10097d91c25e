package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupOldLogs removes files under dir that match pattern and are older than
// retentionDays. The active log file is excluded. A retentionDays value of 0
// disables pruning. Errors are reported on the supplied logger and never fatal.
func CleanupOldLogs(logger *slog.Logger, dir string, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	active := filepath.Join(dir, LogFileName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("log retention scan failed", Error(err), String("dir", dir))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if matched, err := filepath.Match("*.log*", name); err != nil || !matched {
			continue
		}
		fullPath := filepath.Join(dir, name)
		if fullPath == active {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			logger.Warn("log retention delete failed", Error(err), String("path", fullPath))
			continue
		}
		logger.Debug("pruned old log file", String("path", fullPath))
	}
}
