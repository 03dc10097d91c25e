package procscan

import (
	"fmt"
	"os/exec"
	"time"
)

// Marker is a background process that keeps a resource key visible in the
// process table while a multi-step extraction runs, so sibling workers on
// this or other hosts skip the resource between tool invocations.
type Marker struct {
	cmd *exec.Cmd
}

// SpawnMarker starts a cheap shell loop whose argv carries key. The loop
// terminates itself after ttl in case the worker dies without stopping it.
func SpawnMarker(key string, ttl time.Duration) (*Marker, error) {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	iterations := int(ttl / time.Minute)
	if iterations < 1 {
		iterations = 1
	}

	loop := fmt.Sprintf("i=0; while [ $i -lt %d ]; do echo %q >/dev/null; sleep 60; i=$((i+1)); done", iterations, key)
	cmd := exec.Command("sh", "-c", loop)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start marker: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	return &Marker{cmd: cmd}, nil
}

// Stop kills the marker process. Safe on a nil marker.
func (m *Marker) Stop() {
	if m == nil || m.cmd == nil || m.cmd.Process == nil {
		return
	}
	_ = m.cmd.Process.Kill()
}
