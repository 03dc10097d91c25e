package testsupport

import (
	"context"
	"testing"
	"time"

	"aperture/internal/config"
	"aperture/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedSource registers one encrypted source file in the inventory.
func SeedSource(t testing.TB, st *store.Store, filePath, study, interview, interviewType, tag string) *store.InterviewFile {
	t.Helper()

	item := &store.InterviewFile{
		FilePath:      filePath,
		Study:         study,
		InterviewName: interview,
		InterviewType: interviewType,
		FileTag:       tag,
		FileSize:      1,
		FileMtime:     time.Now().UTC(),
	}
	if err := st.RegisterSourceFile(context.Background(), item); err != nil {
		t.Fatalf("store.RegisterSourceFile: %v", err)
	}
	return item
}

// SeedDecrypted records one decrypted file, registering the source first so
// foreign keys hold.
func SeedDecrypted(t testing.TB, st *store.Store, sourcePath, destPath, study, interview, tag string) *store.DecryptedFile {
	t.Helper()

	SeedSource(t, st, sourcePath, study, interview, "open", tag)
	item := &store.DecryptedFile{
		SourcePath:      sourcePath,
		DestinationPath: destPath,
		Study:           study,
		InterviewName:   interview,
		FileTag:         tag,
	}
	if err := st.RecordDecryptedFile(context.Background(), item); err != nil {
		t.Fatalf("store.RecordDecryptedFile: %v", err)
	}
	return item
}
