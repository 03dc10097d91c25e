// Package oplock serializes operations that must run at most once per host,
// like cascading wipes and ingest scans, using advisory file locks.
package oplock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"aperture/internal/config"
)

// Lock names for the guarded operations.
const (
	Wipe   = "wipe"
	Ingest = "ingest"
)

// Lock is one held advisory lock.
type Lock struct {
	name string
	path string
	lock *flock.Flock
}

// Acquire takes the named lock under the configured lock directory without
// blocking. A held lock means another process is mid-operation; callers
// surface that and stop.
func Acquire(cfg *config.Config, name string) (*Lock, error) {
	dir := cfg.Paths.LockDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(dir, name+".lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("another process holds the %s lock (%s)", name, path)
	}
	return &Lock{name: name, path: path, lock: fl}, nil
}

// Release drops the lock. Safe on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Path returns the lock file backing this lock.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}
