package preflight

import (
	"context"

	"aperture/internal/config"
	"aperture/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the environment checks: directory access, free space, and
// store reachability. Binary availability is reported separately by
// CheckSystemDeps so callers can render the two groups apart.
func RunAll(ctx context.Context, cfg *config.Config, st *store.Store) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data root", cfg.Paths.DataRoot),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir),
		CheckFreeSpace("Free space", cfg.Paths.DataRoot),
		CheckStore(ctx, st),
	}
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
