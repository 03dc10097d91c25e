// Package split turns quality-checked interview videos into per-speaker role
// streams. Recordings with letterbox bars carry two side-by-side speakers and
// are cropped into left/right streams; clean recordings pass through whole
// under the configured default role.
package split

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "split"

// Splitter implements the stream-splitting stage worker.
type Splitter struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) error
}

func NewSplitter(cfg *config.Config, st *store.Store, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Splitter{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// WithCommandRunner overrides subprocess execution, for tests.
func (s *Splitter) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

func (s *Splitter) Name() string { return stageName }

type item struct {
	qc *store.QuickQCResult
}

func (i item) Key() string { return i.qc.VideoPath }

func (s *Splitter) Claim(ctx context.Context) (stage.Item, error) {
	qc, err := s.store.NextSplitCandidate(ctx, s.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if qc == nil {
		return nil, nil
	}
	return item{qc: qc}, nil
}

// Process produces the role streams for one video. The crop geometry comes
// from the recorded black-bar height: each speaker occupies half the width,
// with the bars trimmed off top and bottom.
func (s *Splitter) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	qc := claimed.qc
	logger := logging.WithContext(ctx, s.logger)

	if _, err := os.Stat(qc.VideoPath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify input",
			fmt.Sprintf("checked video %s is recorded but missing on disk", qc.VideoPath), err)
	}

	started := time.Now()

	if qc.BlackBarHeight <= 0 {
		streams := []*store.VideoStream{{
			StreamPath:     qc.VideoPath,
			VideoPath:      qc.VideoPath,
			Study:          qc.Study,
			InterviewName:  qc.InterviewName,
			Role:           s.cfg.Split.DefaultRole,
			ProcessSeconds: time.Since(started).Seconds(),
		}}
		if err := s.store.RecordVideoStreams(ctx, streams); err != nil {
			return err
		}
		logger.Info("passthrough stream recorded", logging.String("role", s.cfg.Split.DefaultRole))
		return nil
	}

	bbh := qc.BlackBarHeight
	base := filepath.Base(qc.VideoPath)
	crops := []struct {
		role   string
		filter string
		out    string
	}{
		{role: "left", filter: fmt.Sprintf("crop=iw/2:ih-%d:0:%d", 2*bbh, bbh)},
		{role: "right", filter: fmt.Sprintf("crop=iw/2:ih-%d:iw/2:%d", 2*bbh, bbh)},
	}

	for i := range crops {
		out := naming.StreamPath(s.cfg.Paths.DataRoot, qc.Study, qc.InterviewName, base, crops[i].role)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return services.Wrap(services.ErrTransient, stageName, "create stream directory",
				filepath.Dir(out), err)
		}
		crops[i].out = naming.Uniquify(out)

		err := s.run(ctx, s.cfg.Split.FFmpegBinary,
			"-y", "-v", "error",
			"-i", qc.VideoPath,
			"-filter:v", crops[i].filter,
			"-c:a", "copy",
			crops[i].out)
		if err != nil {
			for _, crop := range crops[:i+1] {
				_ = os.Remove(crop.out)
			}
			return services.Wrap(services.ErrExternalTool, stageName, "crop stream", crops[i].out, err)
		}
	}

	elapsed := time.Since(started).Seconds()
	streams := make([]*store.VideoStream, 0, len(crops))
	for _, crop := range crops {
		if _, err := os.Stat(crop.out); err != nil {
			return services.Wrap(services.ErrIntegrity, stageName, "verify output",
				fmt.Sprintf("tool reported success but %s is missing", crop.out), err)
		}
		streams = append(streams, &store.VideoStream{
			StreamPath:     crop.out,
			VideoPath:      qc.VideoPath,
			Study:          qc.Study,
			InterviewName:  qc.InterviewName,
			Role:           crop.role,
			ProcessSeconds: elapsed,
		})
	}

	if err := s.store.RecordVideoStreams(ctx, streams); err != nil {
		if services.IsContention(err) {
			// Another worker recorded this video's streams first; ours are
			// uniquified stragglers nothing will reference.
			for _, crop := range crops {
				_ = os.Remove(crop.out)
			}
		}
		return err
	}

	logger.Info("role streams recorded",
		logging.Int("streams", len(streams)),
		logging.Int("black_bar_height", bbh),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (s *Splitter) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := exec.LookPath(s.cfg.Split.FFmpegBinary); err != nil {
		return stage.Unhealthyf(stageName, "ffmpeg binary %q not found in PATH", s.cfg.Split.FFmpegBinary)
	}
	if err := s.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

func (s *Splitter) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
