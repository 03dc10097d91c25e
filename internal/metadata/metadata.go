// Package metadata probes decrypted recordings for stream layout. The
// recorded counts steer the rest of the pipeline: files with video streams go
// on to quick QC and splitting, audio-only files go straight to transcription.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/mediainfo"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "metadata"

// Prober implements the metadata stage worker.
type Prober struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
}

func NewProber(cfg *config.Config, st *store.Store, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Prober{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

func (p *Prober) Name() string { return stageName }

type item struct {
	file *store.DecryptedFile
}

func (i item) Key() string { return i.file.DestinationPath }

func (p *Prober) Claim(ctx context.Context) (stage.Item, error) {
	file, err := p.store.NextMetadataCandidate(ctx, p.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return item{file: file}, nil
}

// Process inspects one decrypted file and records its stream counts.
func (p *Prober) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	file := claimed.file
	logger := logging.WithContext(ctx, p.logger)

	if _, err := os.Stat(file.DestinationPath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify input",
			fmt.Sprintf("decrypted file %s is recorded but missing on disk", file.DestinationPath), err)
	}

	started := time.Now()
	result, err := mediainfo.Inspect(ctx, p.cfg.Metadata.FFprobeBinary, file.DestinationPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, stageName, "probe file", file.DestinationPath, err)
	}

	probe := &store.MetadataProbe{
		FilePath:        file.DestinationPath,
		Study:           file.Study,
		ProbeJSON:       string(result.RawJSON()),
		DurationSeconds: result.DurationSeconds(),
		VideoStreams:    result.VideoStreamCount(),
		AudioStreams:    result.AudioStreamCount(),
	}
	if err := p.store.RecordMetadataProbe(ctx, probe); err != nil {
		return err
	}

	logger.Info("probe recorded",
		logging.Float64("duration_seconds", probe.DurationSeconds),
		logging.Int("video_streams", probe.VideoStreams),
		logging.Int("audio_streams", probe.AudioStreams),
		logging.String("audio_language", result.AudioLanguage()),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (p *Prober) HealthCheck(ctx context.Context) stage.Health {
	if p.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := exec.LookPath(p.cfg.Metadata.FFprobeBinary); err != nil {
		return stage.Unhealthyf(stageName, "ffprobe binary %q not found in PATH", p.cfg.Metadata.FFprobeBinary)
	}
	if err := p.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}
