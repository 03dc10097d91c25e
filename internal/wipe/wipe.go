// Package wipe computes and executes the cascading teardown of one
// interview's derived artifacts: files, their now-empty parent directories up
// to the data root, and result rows in reverse dependency order. Execution is
// best-effort and idempotent. The ingest inventory survives, so a wiped
// interview becomes eligible for decryption again.
package wipe

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/store"
)

// Wiper resolves and removes derived artifacts for interviews.
type Wiper struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
}

func New(st *store.Store, cfg *config.Config, logger *slog.Logger) *Wiper {
	return &Wiper{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "wipe"),
	}
}

// Manifest lists everything one wipe will remove. It is computed fresh per
// wipe and never persisted; a dry run prints it and stops.
type Manifest struct {
	Study     string
	Interview string

	// Files and Dirs are on-disk artifacts inside the data root.
	Files []string
	Dirs  []string

	// Row keys per table, consumed in reverse dependency order.
	TranscriptKeys []string
	StreamKeys     []string
	VideoKeys      []string
	FileKeys       []string
	SourceKeys     []string
}

// Empty reports whether the manifest holds nothing to remove.
func (m *Manifest) Empty() bool {
	return len(m.Files) == 0 && len(m.Dirs) == 0 &&
		len(m.TranscriptKeys) == 0 && len(m.StreamKeys) == 0 &&
		len(m.VideoKeys) == 0 && len(m.FileKeys) == 0 && len(m.SourceKeys) == 0
}

// Outcome summarizes one executed wipe.
type Outcome struct {
	FilesRemoved int
	DirsRemoved  int
	RowsDeleted  int64
	Failures     int
}

// Resolve walks the store from the report down to the decrypted files and
// collects every artifact and row key belonging to the interview.
func (w *Wiper) Resolve(ctx context.Context, study, interview string) (*Manifest, error) {
	manifest := &Manifest{Study: study, Interview: interview}
	seen := make(map[string]struct{})
	addFile := func(path string) {
		if path == "" {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		manifest.Files = append(manifest.Files, path)
	}
	addDir := func(path string) {
		if path == "" {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		manifest.Dirs = append(manifest.Dirs, path)
	}

	report, err := w.store.GetReport(ctx, interview)
	if err != nil {
		return nil, err
	}
	if report != nil {
		addFile(report.ReportPath)
	}

	transcripts, err := w.store.TranscriptsForInterview(ctx, interview)
	if err != nil {
		return nil, err
	}
	for _, transcript := range transcripts {
		manifest.TranscriptKeys = append(manifest.TranscriptKeys, transcript.AudioPath)
		addFile(transcript.TranscriptPath)
	}

	runs, err := w.store.FaceRunsForInterview(ctx, interview)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		addDir(run.OutputDir)
		addFile(run.OverlayPath)
	}

	decrypted, err := w.store.DecryptedFilesForInterview(ctx, study, interview)
	if err != nil {
		return nil, err
	}
	for _, dec := range decrypted {
		manifest.SourceKeys = append(manifest.SourceKeys, dec.SourcePath)
		manifest.FileKeys = append(manifest.FileKeys, dec.DestinationPath)
		manifest.VideoKeys = append(manifest.VideoKeys, dec.DestinationPath)

		quickQC, err := w.store.GetQuickQC(ctx, dec.DestinationPath)
		if err != nil {
			return nil, err
		}
		if quickQC != nil {
			addDir(quickQC.ScreenshotDir)
		}

		streams, err := w.store.StreamsForVideo(ctx, dec.DestinationPath)
		if err != nil {
			return nil, err
		}
		for _, stream := range streams {
			manifest.StreamKeys = append(manifest.StreamKeys, stream.StreamPath)
			// A passthrough stream shares the decrypted file's path; the
			// decrypted file entry below covers it.
			if stream.StreamPath != dec.DestinationPath {
				addFile(stream.StreamPath)
			}
		}
		addFile(dec.DestinationPath)
	}
	return manifest, nil
}

// Execute removes the manifest's files and directories, prunes emptied parent
// directories up to the data root, and deletes the rows. Failures are logged
// and counted, never fatal; re-running the same manifest is a no-op.
func (w *Wiper) Execute(ctx context.Context, manifest *Manifest) *Outcome {
	outcome := &Outcome{}
	boundary := filepath.Clean(w.cfg.Paths.DataRoot)
	var parents []string

	for _, file := range manifest.Files {
		if !within(boundary, file) {
			outcome.Failures++
			w.logger.Warn("refusing to remove file outside data root",
				logging.String("path", file), logging.String(logging.FieldAlert, "wipe_boundary"))
			continue
		}
		switch err := os.Remove(file); {
		case err == nil:
			outcome.FilesRemoved++
			parents = append(parents, filepath.Dir(file))
		case errors.Is(err, fs.ErrNotExist):
			// Already gone; a re-wipe stays silent.
		default:
			outcome.Failures++
			w.logger.Warn("remove file failed", logging.String("path", file), logging.Error(err))
		}
	}

	for _, dir := range manifest.Dirs {
		if !within(boundary, dir) {
			outcome.Failures++
			w.logger.Warn("refusing to remove directory outside data root",
				logging.String("path", dir), logging.String(logging.FieldAlert, "wipe_boundary"))
			continue
		}
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			outcome.Failures++
			w.logger.Warn("remove directory failed", logging.String("path", dir), logging.Error(err))
			continue
		}
		outcome.DirsRemoved++
		parents = append(parents, filepath.Dir(dir))
	}

	for _, parent := range parents {
		w.ascend(boundary, parent)
	}

	w.deleteRows(ctx, manifest, outcome)

	w.logger.Info("wipe executed",
		logging.String(logging.FieldStudy, manifest.Study),
		logging.String(logging.FieldInterview, manifest.Interview),
		logging.Int("files_removed", outcome.FilesRemoved),
		logging.Int("dirs_removed", outcome.DirsRemoved),
		logging.Int64("rows_deleted", outcome.RowsDeleted),
		logging.Int("failures", outcome.Failures))
	return outcome
}

func (w *Wiper) deleteRows(ctx context.Context, manifest *Manifest, outcome *Outcome) {
	del := func(table string, fn func() (int64, error)) {
		affected, err := fn()
		if err != nil {
			outcome.Failures++
			w.logger.Warn("row teardown failed", logging.String("table", table), logging.Error(err))
			return
		}
		outcome.RowsDeleted += affected
	}

	del("reports", func() (int64, error) { return w.store.DeleteReportRow(ctx, manifest.Interview) })
	del("face_loads", func() (int64, error) { return w.store.DeleteFaceLoadRow(ctx, manifest.Interview) })
	for _, key := range manifest.TranscriptKeys {
		del("transcripts", func() (int64, error) { return w.store.DeleteTranscriptRow(ctx, key) })
	}
	for _, key := range manifest.StreamKeys {
		del("face_qc", func() (int64, error) { return w.store.DeleteFaceQCRow(ctx, key) })
		del("face_runs", func() (int64, error) { return w.store.DeleteFaceRunRow(ctx, key) })
	}
	for _, key := range manifest.VideoKeys {
		del("video_streams", func() (int64, error) { return w.store.DeleteStreamRows(ctx, key) })
		del("video_quickqc", func() (int64, error) { return w.store.DeleteQuickQCRow(ctx, key) })
	}
	for _, key := range manifest.FileKeys {
		del("metadata_probes", func() (int64, error) { return w.store.DeleteMetadataProbeRow(ctx, key) })
	}
	for _, key := range manifest.SourceKeys {
		del("decrypted_files", func() (int64, error) { return w.store.DeleteDecryptedFileRow(ctx, key) })
	}
}

// ascend removes now-empty parent directories, stopping at the data root or
// at the first non-empty directory.
func (w *Wiper) ascend(boundary, dir string) {
	for dir != boundary && within(boundary, dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func within(boundary, path string) bool {
	rel, err := filepath.Rel(boundary, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
