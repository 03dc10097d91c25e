// Package quickqc samples screenshots from probed videos and measures
// letterbox bars. The recorded bar height decides later whether the splitter
// crops two speaker streams out of a recording or passes it through whole.
package quickqc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/logging"
	"aperture/internal/mediainfo"
	"aperture/internal/naming"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "quickqc"

// Bar measurements are bucketed before the majority vote so near-identical
// heights from noisy frames land together. Heights above the cap threshold
// are full letterbox mattes, not meeting-layout bars, and collapse to a
// conservative crop.
const (
	barBucket       = 10
	barCapThreshold = 200
	barCapValue     = 180
)

// Checker implements the quick quality-control stage worker.
type Checker struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger

	commandRunner func(ctx context.Context, name string, args ...string) (string, error)
}

func NewChecker(cfg *config.Config, st *store.Store, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Checker{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// WithCommandRunner overrides subprocess execution, for tests.
func (c *Checker) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) (string, error)) {
	c.commandRunner = runner
}

func (c *Checker) Name() string { return stageName }

type item struct {
	probe *store.MetadataProbe
}

func (i item) Key() string { return i.probe.FilePath }

func (c *Checker) Claim(ctx context.Context) (stage.Item, error) {
	probe, err := c.store.NextQuickQCCandidate(ctx, c.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, nil
	}
	return item{probe: probe}, nil
}

// Process captures evenly spaced screenshots across the recording, measures
// the black-bar height on each, and records the consensus along with the
// video's basic dimensions.
func (c *Checker) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	probe := claimed.probe
	logger := logging.WithContext(ctx, c.logger)

	if _, err := os.Stat(probe.FilePath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify input",
			fmt.Sprintf("probed video %s is recorded but missing on disk", probe.FilePath), err)
	}

	result, err := mediainfo.Parse([]byte(probe.ProbeJSON))
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "parse stored probe", probe.FilePath, err)
	}
	width, height := result.Dimensions()

	dec, err := c.store.GetDecryptedFile(ctx, probe.FilePath)
	if err != nil {
		return err
	}
	if dec == nil {
		return services.Wrap(services.ErrIntegrity, stageName, "resolve interview",
			fmt.Sprintf("no decrypted_files row backs probe %s", probe.FilePath), nil)
	}

	shotDir := naming.ScreenshotDir(c.cfg.Paths.DataRoot, dec.Study, dec.InterviewName, filepath.Base(probe.FilePath))
	if err := os.MkdirAll(shotDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "create screenshot directory", shotDir, err)
	}

	started := time.Now()
	count := c.cfg.QuickQC.Screenshots
	if count < 1 {
		count = 1
	}

	var bars []int
	for i := 1; i <= count; i++ {
		offset := probe.DurationSeconds * float64(i) / float64(count+1)
		shot := filepath.Join(shotDir, fmt.Sprintf("shot_%02d.png", i))
		_, err := c.run(ctx, c.cfg.QuickQC.FFmpegBinary,
			"-y", "-v", "error",
			"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
			"-i", probe.FilePath,
			"-frames:v", "1",
			shot)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, stageName, "capture screenshot", shot, err)
		}

		bar, measured, err := c.measureBar(ctx, shot)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, stageName, "measure black bars", shot, err)
		}
		if measured {
			bars = append(bars, bar)
		}
	}

	record := &store.QuickQCResult{
		VideoPath:       probe.FilePath,
		Study:           dec.Study,
		InterviewName:   dec.InterviewName,
		DurationSeconds: probe.DurationSeconds,
		Width:           width,
		Height:          height,
		BlackBarHeight:  consensusBarHeight(bars),
		ScreenshotDir:   shotDir,
		ProcessSeconds:  time.Since(started).Seconds(),
	}
	if err := c.store.RecordQuickQC(ctx, record); err != nil {
		return err
	}

	logger.Info("quick qc recorded",
		logging.Int("width", record.Width),
		logging.Int("height", record.Height),
		logging.Int("black_bar_height", record.BlackBarHeight),
		logging.Int("screenshots", count),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

func (c *Checker) HealthCheck(ctx context.Context) stage.Health {
	if c.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := exec.LookPath(c.cfg.QuickQC.FFmpegBinary); err != nil {
		return stage.Unhealthyf(stageName, "ffmpeg binary %q not found in PATH", c.cfg.QuickQC.FFmpegBinary)
	}
	if err := c.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

// measureBar runs cropdetect over one screenshot and reports the detected
// top offset. measured is false when the filter produced no usable line.
func (c *Checker) measureBar(ctx context.Context, shot string) (bar int, measured bool, err error) {
	output, err := c.run(ctx, c.cfg.QuickQC.FFmpegBinary,
		"-v", "info", "-i", shot,
		"-vf", "cropdetect=limit=24:round=2",
		"-frames:v", "2", "-f", "null", "-")
	if err != nil {
		return 0, false, err
	}
	bar, measured = parseCropBar(output)
	return bar, measured, nil
}

// parseCropBar extracts the vertical offset from the last cropdetect line.
// A suggested crop of 1920:880:0:100 on a 1080p frame means 100px bars top
// and bottom.
func parseCropBar(output string) (int, bool) {
	var (
		bar   int
		found bool
	)
	for _, line := range strings.Split(output, "\n") {
		idx := strings.LastIndex(line, "crop=")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len("crop="):])
		if len(fields) == 0 {
			continue
		}
		parts := strings.Split(fields[0], ":")
		if len(parts) != 4 {
			continue
		}
		y, err := strconv.Atoi(parts[3])
		if err != nil || y < 0 {
			continue
		}
		bar = y
		found = true
	}
	return bar, found
}

// consensusBarHeight reduces per-screenshot measurements to a single height:
// bucket, majority vote, median of the winning bucket. Ties go to the lower
// bucket so ambiguous recordings lean toward not cropping.
func consensusBarHeight(measurements []int) int {
	if len(measurements) == 0 {
		return 0
	}

	buckets := make(map[int][]int)
	for _, m := range measurements {
		buckets[m/barBucket] = append(buckets[m/barBucket], m)
	}
	keys := make([]int, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	winner := keys[0]
	for _, key := range keys[1:] {
		if len(buckets[key]) > len(buckets[winner]) {
			winner = key
		}
	}

	members := buckets[winner]
	sort.Ints(members)
	height := members[len(members)/2]
	if height > barCapThreshold {
		return barCapValue
	}
	return height
}

func (c *Checker) run(ctx context.Context, name string, args ...string) (string, error) {
	if c.commandRunner != nil {
		return c.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
