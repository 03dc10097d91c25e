// Package faceload implements the stage that promotes an interview's face
// features into the analysis set once every stream has passed QC.
package faceload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "faceload"

// Loader marks interviews whose face extraction output is complete and
// verified. It implements stage.Handler.
type Loader struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewLoader wires the stage against live collaborators.
func NewLoader(cfg *config.Config, st *store.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Name identifies this stage in logs and status output.
func (l *Loader) Name() string { return stageName }

// item carries every face run of one interview; the load is all-or-nothing.
type item struct {
	interview string
	runs      []*store.FaceRun
}

func (i item) Key() string { return i.interview }

// Claim returns the next interview whose streams all passed face QC, or nil
// when none qualifies.
func (l *Loader) Claim(ctx context.Context) (stage.Item, error) {
	runs, err := l.store.NextFaceLoadCandidate(ctx, l.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return item{interview: runs[0].InterviewName, runs: runs}, nil
}

// Process re-verifies each run's output directory on disk, then records the
// interview as loaded.
func (l *Loader) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	logger := logging.WithContext(ctx, l.logger)

	started := time.Now()
	for _, run := range claimed.runs {
		info, err := os.Stat(run.OutputDir)
		if err != nil {
			return services.Wrap(services.ErrIntegrity, stageName, "verify features",
				fmt.Sprintf("feature directory %s is missing on disk", run.OutputDir), err)
		}
		if !info.IsDir() {
			return services.Wrap(services.ErrIntegrity, stageName, "verify features",
				fmt.Sprintf("feature path %s is not a directory", run.OutputDir), nil)
		}
	}

	record := &store.FaceLoad{
		InterviewName: claimed.interview,
		Study:         claimed.runs[0].Study,
		StreamCount:   len(claimed.runs),
	}
	if err := l.store.RecordFaceLoad(ctx, record); err != nil {
		return err
	}

	logger.Info("interview face features loaded",
		logging.String(logging.FieldInterview, claimed.interview),
		logging.Int("streams", len(claimed.runs)),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck verifies the store connection.
func (l *Loader) HealthCheck(ctx context.Context) stage.Health {
	if l.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if err := l.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}
