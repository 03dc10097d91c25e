// Package transcribe implements the audio transcription stage.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/language"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/retry"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "transcribe"

// Transcriber feeds decrypted audio through the transcription tool and
// records the resulting JSON transcript. It implements stage.Handler.
type Transcriber struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewTranscriber wires the stage against live collaborators.
func NewTranscriber(cfg *config.Config, st *store.Store, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// WithCommandRunner overrides subprocess execution, for tests.
func (t *Transcriber) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	t.commandRunner = runner
}

// Name identifies this stage in logs and status output.
func (t *Transcriber) Name() string { return stageName }

type item struct {
	file *store.DecryptedFile
}

func (i item) Key() string { return i.file.DestinationPath }

// Claim returns the next audio file without a transcript, or nil when the
// queue is empty.
func (t *Transcriber) Claim(ctx context.Context) (stage.Item, error) {
	file, err := t.store.NextTranscribeCandidate(ctx, t.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return item{file: file}, nil
}

// Process transcribes one audio file. The tool writes its own JSON into the
// transcript directory; parsing that output is part of the attempt, so a run
// that exits zero but leaves unreadable JSON is retried like a tool failure.
func (t *Transcriber) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	file := claimed.file
	logger := logging.WithContext(ctx, t.logger)

	if _, err := os.Stat(file.DestinationPath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify input",
			fmt.Sprintf("decrypted audio %s is missing on disk", file.DestinationPath), err)
	}

	outPath := naming.TranscriptPath(
		t.cfg.Paths.DataRoot, file.Study, file.InterviewName, filepath.Base(file.DestinationPath))
	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "create transcript directory",
			outDir, err)
	}

	started := time.Now()
	var (
		summary  transcriptSummary
		attempts int
	)
	supervisor := retry.Supervisor{
		Stage:       stageName,
		MaxAttempts: t.cfg.Transcribe.MaxRetry,
		Cleanup: func(context.Context) error {
			return removeIfPresent(outPath)
		},
		Logger: logger,
	}
	args := []string{
		file.DestinationPath,
		"--model", t.cfg.Transcribe.Model,
		"--output_dir", outDir,
		"--output_format", "json",
	}
	// An unset language leaves detection to the tool.
	if lang := language.Normalize(t.cfg.Transcribe.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	err := supervisor.Run(ctx, file.DestinationPath, func(ctx context.Context, attempt int) error {
		attempts = attempt
		runErr := t.run(ctx, t.cfg.Transcribe.Binary, args...)
		if runErr != nil {
			return runErr
		}
		var loadErr error
		summary, loadErr = loadTranscript(outPath)
		return loadErr
	})
	if err != nil {
		return err
	}

	record := &store.Transcript{
		AudioPath:       file.DestinationPath,
		Study:           file.Study,
		InterviewName:   file.InterviewName,
		TranscriptPath:  outPath,
		Language:        summary.Language,
		SegmentCount:    summary.SegmentCount,
		DurationSeconds: summary.DurationSeconds,
		Attempts:        attempts,
	}
	if err := t.store.RecordTranscript(ctx, record); err != nil {
		// The transcript path is deterministic, so on contention the file on
		// disk is the same one the winner recorded. Leave it alone.
		return err
	}

	logger.Info("transcript recorded",
		logging.String("transcript", outPath),
		logging.String("language", record.Language),
		logging.Int("segments", summary.SegmentCount),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck verifies the transcription tool and the store.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := exec.LookPath(t.cfg.Transcribe.Binary); err != nil {
		return stage.Unhealthyf(stageName, "transcription binary %q not found in PATH", t.cfg.Transcribe.Binary)
	}
	if err := t.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

type transcriptSummary struct {
	Language        string
	SegmentCount    int
	DurationSeconds float64
}

type transcriptPayload struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language string `json:"language"`
}

// loadTranscript reads the tool's JSON output and summarizes it. Duration is
// the latest segment end; zero segments is legal for silent audio.
func loadTranscript(path string) (transcriptSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transcriptSummary{}, fmt.Errorf("read transcript: %w", err)
	}
	var payload transcriptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return transcriptSummary{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}

	summary := transcriptSummary{
		Language:     language.Normalize(payload.Language),
		SegmentCount: len(payload.Segments),
	}
	for _, segment := range payload.Segments {
		if segment.End > summary.DurationSeconds {
			summary.DurationSeconds = segment.End
		}
	}
	return summary, nil
}

func (t *Transcriber) run(ctx context.Context, name string, args ...string) error {
	if t.commandRunner != nil {
		return t.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
