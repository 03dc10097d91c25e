// Package faceqc scores completed face-feature runs. The extraction tool
// writes one CSV row per frame with a detection confidence and a success
// flag; this stage reduces those to a frame-success ratio and a mean
// confidence, and passes or fails the stream against configured thresholds.
package faceqc

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/notifications"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "faceqc"

// QC implements the face-feature quality-control stage worker.
type QC struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Notifier
}

func NewQC(cfg *config.Config, st *store.Store, logger *slog.Logger) *QC {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QC{
		store:    st,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, stageName),
		notifier: notifications.New(cfg),
	}
}

func (q *QC) Name() string { return stageName }

type item struct {
	run *store.FaceRun
}

func (i item) Key() string { return i.run.StreamPath }

func (q *QC) Claim(ctx context.Context) (stage.Item, error) {
	run, err := q.store.NextFaceQCCandidate(ctx, q.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}
	return item{run: run}, nil
}

// Process reads the run's per-frame CSV and records the verdict.
func (q *QC) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	run := claimed.run
	logger := logging.WithContext(ctx, q.logger)

	csvPath := FeatureCSVPath(run.OutputDir)
	file, err := os.Open(csvPath)
	if err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "open feature csv",
			fmt.Sprintf("run recorded for %s but %s is unreadable", run.StreamPath, csvPath), err)
	}
	defer file.Close()

	started := time.Now()
	stats, err := scoreFrames(file)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "parse feature csv", csvPath, err)
	}

	passed := stats.SuccessRatio >= q.cfg.FaceQC.MinSuccessRatio &&
		stats.MeanConfidence >= q.cfg.FaceQC.MinConfidence
	record := &store.FaceQCResult{
		StreamPath:     run.StreamPath,
		FramesTotal:    stats.Total,
		FramesSuccess:  stats.Success,
		SuccessRatio:   stats.SuccessRatio,
		MeanConfidence: stats.MeanConfidence,
		Passed:         passed,
	}
	if err := q.store.RecordFaceQC(ctx, record); err != nil {
		return err
	}
	if !passed {
		// A rejected stream sits until someone re-runs extraction, so the
		// operator hears about it now rather than at report time.
		if nerr := q.notifier.QCRejected(ctx, run.Study, run.InterviewName, run.StreamPath, stats.SuccessRatio); nerr != nil {
			logger.Warn("rejection notification not delivered", logging.Error(nerr))
		}
	}

	logger.Info("face qc recorded",
		logging.Bool("passed", passed),
		logging.Int("frames_total", stats.Total),
		logging.Float64("success_ratio", stats.SuccessRatio),
		logging.Float64("mean_confidence", stats.MeanConfidence),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (q *QC) HealthCheck(ctx context.Context) stage.Health {
	if q.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if q.cfg.FaceQC.MinSuccessRatio <= 0 || q.cfg.FaceQC.MinSuccessRatio > 1 {
		return stage.Unhealthyf(stageName, "min_success_ratio %v outside (0, 1]", q.cfg.FaceQC.MinSuccessRatio)
	}
	if err := q.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

// FeatureCSVPath returns the per-frame CSV the extraction tool writes inside
// a run's output directory, named after the stream.
func FeatureCSVPath(outputDir string) string {
	return filepath.Join(outputDir, filepath.Base(outputDir)+".csv")
}

type frameStats struct {
	Total          int
	Success        int
	SuccessRatio   float64
	MeanConfidence float64
}

// scoreFrames aggregates the tool's per-frame rows. The header names the
// columns; only confidence and success matter here.
func scoreFrames(r io.Reader) (frameStats, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return frameStats{}, fmt.Errorf("read header: %w", err)
	}
	confidenceCol, successCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "confidence":
			confidenceCol = i
		case "success":
			successCol = i
		}
	}
	if confidenceCol < 0 || successCol < 0 {
		return frameStats{}, errors.New("header lacks confidence/success columns")
	}

	var (
		stats         frameStats
		confidenceSum float64
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frameStats{}, fmt.Errorf("read row %d: %w", stats.Total+1, err)
		}
		if confidenceCol >= len(row) || successCol >= len(row) {
			return frameStats{}, fmt.Errorf("row %d is missing columns", stats.Total+1)
		}

		confidence, err := strconv.ParseFloat(strings.TrimSpace(row[confidenceCol]), 64)
		if err != nil {
			return frameStats{}, fmt.Errorf("row %d confidence: %w", stats.Total+1, err)
		}
		stats.Total++
		confidenceSum += confidence
		if strings.TrimSpace(row[successCol]) == "1" {
			stats.Success++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRatio = float64(stats.Success) / float64(stats.Total)
		stats.MeanConfidence = confidenceSum / float64(stats.Total)
	}
	return stats, nil
}
