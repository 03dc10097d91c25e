package store_test

import (
	"context"
	"errors"
	"testing"

	"aperture/internal/services"
	"aperture/internal/store"
	"aperture/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedSource(t, st, "/raw/alpha_int_0001_video.enc", "alpha", "alpha_int_0001", "open", "video")

	fetched, err := st.GetInterviewFile(ctx, "/raw/alpha_int_0001_video.enc")
	if err != nil {
		t.Fatalf("GetInterviewFile failed: %v", err)
	}
	if fetched == nil || fetched.InterviewName != "alpha_int_0001" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
	if fetched.Ignored {
		t.Fatal("fresh source should not be ignored")
	}

	second, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := second.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	_ = second.Close()
}

func TestRegisterSourceFileKeepsOperatorDecisions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.SeedSource(t, st, "/raw/a.enc", "alpha", "alpha_int_0001", "open", "video")
	if err := st.SetSourceIgnored(ctx, item.FilePath, true); err != nil {
		t.Fatalf("SetSourceIgnored failed: %v", err)
	}

	item.FileSize = 2048
	if err := st.RegisterSourceFile(ctx, item); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	fetched, err := st.GetInterviewFile(ctx, item.FilePath)
	if err != nil {
		t.Fatalf("GetInterviewFile failed: %v", err)
	}
	if fetched.FileSize != 2048 {
		t.Fatalf("expected refreshed size 2048, got %d", fetched.FileSize)
	}
	if !fetched.Ignored {
		t.Fatal("rescan should not reset the ignored flag")
	}
}

func TestSetSourceIgnoredUnknownPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := st.SetSourceIgnored(context.Background(), "/raw/missing.enc", true); err == nil {
		t.Fatal("expected error for unregistered path")
	}
}

func TestDuplicateResultInsertIsContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedDecrypted(t, st, "/raw/a.enc", "/data/a.mp4", "alpha", "alpha_int_0001", "video")

	dup := &store.DecryptedFile{
		SourcePath:      "/raw/a.enc",
		DestinationPath: "/data/a_1.mp4",
		Study:           "alpha",
		InterviewName:   "alpha_int_0001",
		FileTag:         "video",
	}
	err := st.RecordDecryptedFile(ctx, dup)
	if !errors.Is(err, services.ErrContention) {
		t.Fatalf("expected contention for duplicate source, got %v", err)
	}

	testsupport.SeedSource(t, st, "/raw/b.enc", "alpha", "alpha_int_0002", "open", "video")
	clash := &store.DecryptedFile{
		SourcePath:      "/raw/b.enc",
		DestinationPath: "/data/a.mp4",
		Study:           "alpha",
		InterviewName:   "alpha_int_0002",
		FileTag:         "video",
	}
	err = st.RecordDecryptedFile(ctx, clash)
	if !errors.Is(err, services.ErrContention) {
		t.Fatalf("expected contention for duplicate destination, got %v", err)
	}
}

func TestRecordVideoStreamsRollsBackOnDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.RecordQuickQC(ctx, &store.QuickQCResult{
		VideoPath:     "/data/a.mp4",
		Study:         "alpha",
		InterviewName: "alpha_int_0001",
	}); err != nil {
		t.Fatalf("RecordQuickQC failed: %v", err)
	}

	first := []*store.VideoStream{{
		StreamPath:    "/data/a_left.mp4",
		VideoPath:     "/data/a.mp4",
		Study:         "alpha",
		InterviewName: "alpha_int_0001",
		Role:          "left",
	}}
	if err := st.RecordVideoStreams(ctx, first); err != nil {
		t.Fatalf("RecordVideoStreams failed: %v", err)
	}

	batch := []*store.VideoStream{
		{
			StreamPath:    "/data/a_right.mp4",
			VideoPath:     "/data/a.mp4",
			Study:         "alpha",
			InterviewName: "alpha_int_0001",
			Role:          "right",
		},
		{
			StreamPath:    "/data/a_left.mp4",
			VideoPath:     "/data/a.mp4",
			Study:         "alpha",
			InterviewName: "alpha_int_0001",
			Role:          "left",
		},
	}
	err := st.RecordVideoStreams(ctx, batch)
	if !errors.Is(err, services.ErrContention) {
		t.Fatalf("expected contention, got %v", err)
	}

	right, err := st.GetVideoStream(ctx, "/data/a_right.mp4")
	if err != nil {
		t.Fatalf("GetVideoStream failed: %v", err)
	}
	if right != nil {
		t.Fatal("partial stream batch should have rolled back")
	}
}

func TestGetMissingRowsReturnNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if item, err := st.GetDecryptedFile(ctx, "/nope"); err != nil || item != nil {
		t.Fatalf("expected nil, nil for missing decrypted file, got %#v, %v", item, err)
	}
	if item, err := st.GetFaceRun(ctx, "/nope"); err != nil || item != nil {
		t.Fatalf("expected nil, nil for missing face run, got %#v, %v", item, err)
	}
	if item, err := st.GetReport(ctx, "nope"); err != nil || item != nil {
		t.Fatalf("expected nil, nil for missing report, got %#v, %v", item, err)
	}
}
