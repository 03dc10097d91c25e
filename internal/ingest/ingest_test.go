package ingest_test

import (
	"context"
	"path/filepath"
	"testing"

	"aperture/internal/config"
	"aperture/internal/ingest"
	"aperture/internal/naming"
	"aperture/internal/store"
	"aperture/internal/testsupport"
)

func newScanner(t *testing.T, studies ...string) (*ingest.Scanner, *config.Config, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStudies(studies...))
	st := testsupport.MustOpenStore(t, cfg)
	return ingest.NewScanner(cfg, st, nil), cfg, st
}

func writeRawSource(t *testing.T, cfg *config.Config, study, interviewType, interview, name string) string {
	t.Helper()
	path := filepath.Join(naming.RawRoot(cfg.Paths.DataRoot, study), interviewType, interview,
		name+naming.EncryptedSuffix)
	testsupport.WriteFile(t, path, 64)
	return path
}

func TestScanRegistersEncryptedSources(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, st := newScanner(t, "STUDYA")
	video := writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")
	audio := writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.wav")

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Scanned != 2 || result.Registered != 2 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 scanned and registered", result)
	}

	row, err := st.GetInterviewFile(ctx, video)
	if err != nil {
		t.Fatalf("GetInterviewFile failed: %v", err)
	}
	if row == nil {
		t.Fatal("expected an inventory row for the video source")
	}
	if row.Study != "STUDYA" || row.InterviewName != "interview_alpha" || row.InterviewType != "onsite" {
		t.Fatalf("parsed fields wrong: %+v", row)
	}
	if row.FileTag != naming.TagVideo {
		t.Fatalf("video tagged %q, want %q", row.FileTag, naming.TagVideo)
	}
	if row.FileSize != 64 {
		t.Fatalf("file size = %d, want 64", row.FileSize)
	}
	if row.FileMtime.IsZero() {
		t.Fatal("file mtime not captured")
	}

	row, err = st.GetInterviewFile(ctx, audio)
	if err != nil || row == nil {
		t.Fatalf("GetInterviewFile audio failed: row=%v err=%v", row, err)
	}
	if row.FileTag != naming.TagAudio {
		t.Fatalf("audio tagged %q, want %q", row.FileTag, naming.TagAudio)
	}
}

func TestScanIgnoresUnencryptedFiles(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, _ := newScanner(t, "STUDYA")
	plain := filepath.Join(naming.RawRoot(cfg.Paths.DataRoot, "STUDYA"), "onsite", "interview_alpha", "notes.txt")
	testsupport.WriteFile(t, plain, 8)

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("scanned %d files, want 0", result.Scanned)
	}
}

func TestRescanPreservesOperatorDecisions(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, st := newScanner(t, "STUDYA")
	source := writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")

	if _, err := scanner.Scan(ctx); err != nil {
		t.Fatalf("first Scan failed: %v", err)
	}
	if err := st.SetSourceIgnored(ctx, source, true); err != nil {
		t.Fatalf("SetSourceIgnored failed: %v", err)
	}

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if result.Registered != 1 {
		t.Fatalf("rescan registered %d, want 1 refreshed row", result.Registered)
	}
	row, err := st.GetInterviewFile(ctx, source)
	if err != nil || row == nil {
		t.Fatalf("GetInterviewFile failed: row=%v err=%v", row, err)
	}
	if !row.Ignored {
		t.Fatal("rescan cleared the operator's ignore flag")
	}
}

func TestScanToleratesMissingRawRoot(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, _ := newScanner(t, "STUDYA", "STUDYB")
	writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Registered != 1 {
		t.Fatalf("registered %d, want 1", result.Registered)
	}
	if len(result.MissingRoots) != 1 || result.MissingRoots[0] != "STUDYB" {
		t.Fatalf("missing roots = %v, want [STUDYB]", result.MissingRoots)
	}
}

func TestScanCountsUnparseablePaths(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, _ := newScanner(t, "STUDYA")
	// Directly under the raw root, missing the type and interview segments.
	stray := filepath.Join(naming.RawRoot(cfg.Paths.DataRoot, "STUDYA"), "stray.mp4"+naming.EncryptedSuffix)
	testsupport.WriteFile(t, stray, 8)
	writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if result.Scanned != 2 {
		t.Fatalf("scanned %d, want 2", result.Scanned)
	}
	if result.Registered != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 registered and 1 skipped", result)
	}
}

func TestScanReportsProgress(t *testing.T) {
	ctx := context.Background()
	scanner, cfg, _ := newScanner(t, "STUDYA")
	writeRawSource(t, cfg, "STUDYA", "onsite", "interview_alpha", "interview_alpha.mp4")
	writeRawSource(t, cfg, "STUDYA", "onsite", "interview_beta", "interview_beta.mp4")

	var seen [][2]int
	scanner.WithObserver(func(done, total int) {
		seen = append(seen, [2]int{done, total})
	})

	if _, err := scanner.Scan(ctx); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("observer fired %d times, want 2", len(seen))
	}
	for i, call := range seen {
		if call[0] != i+1 || call[1] != 2 {
			t.Fatalf("call %d = %v, want [%d 2]", i, call, i+1)
		}
	}
}
