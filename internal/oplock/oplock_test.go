package oplock_test

import (
	"testing"

	"aperture/internal/oplock"
	"aperture/internal/testsupport"
)

func TestAcquireExcludesSecondHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := oplock.Acquire(cfg, oplock.Wipe)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer func() { _ = first.Release() }()

	if _, err := oplock.Acquire(cfg, oplock.Wipe); err == nil {
		t.Fatal("second Acquire on a held lock should fail")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := oplock.Acquire(cfg, oplock.Wipe)
	if err != nil {
		t.Fatalf("re-Acquire after release failed: %v", err)
	}
	_ = again.Release()
}

func TestDifferentNamesAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	wipe, err := oplock.Acquire(cfg, oplock.Wipe)
	if err != nil {
		t.Fatalf("wipe Acquire failed: %v", err)
	}
	defer func() { _ = wipe.Release() }()

	ingest, err := oplock.Acquire(cfg, oplock.Ingest)
	if err != nil {
		t.Fatalf("ingest Acquire failed: %v", err)
	}
	defer func() { _ = ingest.Release() }()

	if wipe.Path() == ingest.Path() {
		t.Fatal("locks should use distinct files")
	}
}

func TestReleaseNilLock(t *testing.T) {
	var l *oplock.Lock
	if err := l.Release(); err != nil {
		t.Fatalf("nil Release should be a no-op, got %v", err)
	}
}
