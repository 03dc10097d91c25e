package decrypt_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aperture/internal/config"
	"aperture/internal/decrypt"
	"aperture/internal/gate"
	"aperture/internal/naming"
	"aperture/internal/services"
	"aperture/internal/store"
	"aperture/internal/testsupport"
)

func newStage(t *testing.T, cfg *config.Config, st *store.Store) (*decrypt.Decryptor, *gate.Controller) {
	t.Helper()
	gates := gate.NewController(st, nil)
	return decrypt.NewDecryptor(cfg, st, gates, "", nil), gates
}

func seedEncryptedSource(t *testing.T, cfg *config.Config, st *store.Store, interview, name string) *store.InterviewFile {
	t.Helper()
	path := filepath.Join(naming.RawRoot(cfg.Paths.DataRoot, "STUDYA"), "onsite", interview, name+naming.EncryptedSuffix)
	testsupport.WriteFile(t, path, 64)
	return testsupport.SeedSource(t, st, path, "STUDYA", interview, "onsite", naming.TagVideo)
}

// copyRunner stands in for the decryption tool by copying -in to -out.
func copyRunner(_ context.Context, _ string, args ...string) error {
	payload, err := os.ReadFile(argValue(args, "-in"))
	if err != nil {
		return err
	}
	return os.WriteFile(argValue(args, "-out"), payload, 0o644)
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestClaimStartsWithGateEnabled(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	item, err := handler.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected a claim while the gate initializes to enabled")
	}
}

func TestClaimHonorsClosedGate(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, gates := newStage(t, cfg, st)
	seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	if err := gates.Complete(ctx, gate.Decryption); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	item, err := handler.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected no claim behind a closed gate, got %s", item.Key())
	}
}

func TestProcessDecryptsSource(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	handler.WithCommandRunner(copyRunner)
	source := seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}
	if err := handler.Process(ctx, item); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	dest := naming.DecryptedPath(cfg.Paths.DataRoot, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("decrypted output missing: %v", err)
	}
	row, err := st.GetDecryptedFile(ctx, dest)
	if err != nil {
		t.Fatalf("GetDecryptedFile failed: %v", err)
	}
	if row == nil {
		t.Fatal("expected a decrypted_files row")
	}
	if row.SourcePath != source.FilePath {
		t.Fatalf("row source = %q, want %q", row.SourcePath, source.FilePath)
	}
	if row.FileTag != naming.TagVideo {
		t.Fatalf("row tag = %q, want %q", row.FileTag, naming.TagVideo)
	}
}

func TestProcessUniquifiesOccupiedDestination(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	handler.WithCommandRunner(copyRunner)
	source := seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	occupied := naming.DecryptedPath(cfg.Paths.DataRoot, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")
	testsupport.WriteFile(t, occupied, 8)

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}
	if err := handler.Process(ctx, item); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	row, err := st.GetDecryptedFile(ctx, strings.TrimSuffix(occupied, ".mp4")+"_1.mp4")
	if err != nil {
		t.Fatalf("GetDecryptedFile failed: %v", err)
	}
	if row == nil || row.SourcePath != source.FilePath {
		t.Fatalf("expected row under uniquified destination, got %+v", row)
	}
	if _, err := os.Stat(row.DestinationPath); err != nil {
		t.Fatalf("uniquified output missing: %v", err)
	}
}

func TestQuotaCompletesGate(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	cfg.Decrypt.Quota = 2
	st := testsupport.MustOpenStore(t, cfg)
	handler, gates := newStage(t, cfg, st)
	handler.WithCommandRunner(copyRunner)
	for _, name := range []string{"interview_alpha", "interview_beta", "interview_gamma"} {
		seedEncryptedSource(t, cfg, st, name, name+".mp4")
	}

	for i := 0; i < 2; i++ {
		item, err := handler.Claim(ctx)
		if err != nil || item == nil {
			t.Fatalf("claim %d failed: item=%v err=%v", i, item, err)
		}
		if err := handler.Process(ctx, item); err != nil {
			t.Fatalf("process %d failed: %v", i, err)
		}
	}

	item, err := handler.Claim(ctx)
	if err != nil {
		t.Fatalf("post-quota claim failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected the quota to stop the cycle, got %s", item.Key())
	}
	value, err := st.GateValue(ctx, gate.Decryption)
	if err != nil {
		t.Fatalf("GateValue failed: %v", err)
	}
	if value != gate.Disabled {
		t.Fatalf("gate = %q after quota, want %q", value, gate.Disabled)
	}

	if err := gates.Request(ctx, gate.Decryption); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	item, err = handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("claim after re-request failed: item=%v err=%v", item, err)
	}
}

func TestProcessMissingKeyFileIsFatal(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	handler.WithCommandRunner(copyRunner)
	seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}
	if err := os.Remove(cfg.Decrypt.KeyFile); err != nil {
		t.Fatalf("remove key file: %v", err)
	}

	err = handler.Process(ctx, item)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatalf("missing key material must be fatal, got %v", err)
	}
}

func TestProcessMissingOutputIsFatal(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	handler.WithCommandRunner(func(context.Context, string, ...string) error {
		return nil // succeed without writing anything
	})
	seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}

	err = handler.Process(ctx, item)
	if !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error for missing output, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatalf("missing output must be fatal, got %v", err)
	}
}

func TestProcessRetryExhaustionCleansPartialOutput(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	cfg.Decrypt.MaxRetry = 3
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	var calls int
	var partial string
	handler.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		calls++
		partial = argValue(args, "-out")
		if err := os.WriteFile(partial, []byte("partial"), 0o644); err != nil {
			return err
		}
		return errors.New("bad magic number")
	})

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}

	err = handler.Process(ctx, item)
	if !errors.Is(err, services.ErrRetryExhausted) {
		t.Fatalf("expected retry exhaustion, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("tool ran %d times, want 3", calls)
	}
	if _, statErr := os.Stat(partial); statErr == nil {
		t.Fatal("partial output survived cleanup")
	}
}

func TestProcessContentionDropsDuplicateCopy(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	handler.WithCommandRunner(copyRunner)
	source := seedEncryptedSource(t, cfg, st, "interview_alpha", "interview_alpha.mp4")

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}

	// Another worker commits the same source between our claim and insert.
	winnerDest := filepath.Join(t.TempDir(), "winner.mp4")
	testsupport.SeedDecrypted(t, st, source.FilePath, winnerDest, "STUDYA", "interview_alpha", naming.TagVideo)

	err = handler.Process(ctx, item)
	if !services.IsContention(err) {
		t.Fatalf("expected contention, got %v", err)
	}
	loserDest := naming.DecryptedPath(cfg.Paths.DataRoot, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")
	if _, statErr := os.Stat(loserDest); statErr == nil {
		t.Fatal("losing copy should have been removed")
	}
}

func TestProcessRunsConfiguredBinary(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies("STUDYA"))
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)
	seedEncryptedSource(t, cfg, st, "interview_echo", "interview_echo.mp4")

	cfg.Decrypt.Binary = testsupport.WriteScript(t, t.TempDir(), "openssl", `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-out" ]; then out="$arg"; fi
  prev="$arg"
done
echo decrypted > "$out"
`)

	item, err := handler.Claim(ctx)
	if err != nil || item == nil {
		t.Fatalf("Claim failed: item=%v err=%v", item, err)
	}
	if err := handler.Process(ctx, item); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	dest := naming.DecryptedPath(cfg.Paths.DataRoot, "STUDYA", "onsite", "interview_echo", "interview_echo.mp4")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("decrypted output missing: %v", err)
	}
}

func TestHealthCheckReportsMissingBinary(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	handler, _ := newStage(t, cfg, st)

	cfg.Decrypt.Binary = "no-such-decryptor"
	health := handler.HealthCheck(ctx)
	if health.Ready {
		t.Fatal("expected unhealthy report for a missing binary")
	}
	if !strings.Contains(health.Detail, "no-such-decryptor") {
		t.Fatalf("detail %q does not name the binary", health.Detail)
	}

	testsupport.StubBinaries(t, testsupport.BaseDir(cfg), "openssl")
	cfg.Decrypt.Binary = "openssl"
	health = handler.HealthCheck(ctx)
	if !health.Ready {
		t.Fatalf("expected healthy report, got %q", health.Detail)
	}
}
