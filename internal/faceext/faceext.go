// Package faceext implements the face-feature extraction stage. Extraction is
// the pipeline's heaviest job and the only one coordinated across worker
// instances: claims skip streams another process already carries in its argv,
// a marker process keeps the interview visible between tool invocations, and a
// finished stream stashes its sibling so one source's streams process back to
// back.
package faceext

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"aperture/internal/config"
	"aperture/internal/faceqc"
	"aperture/internal/fileutil"
	"aperture/internal/gate"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/procscan"
	"aperture/internal/retry"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "faceext"

// Overlay rendering constants. Aligned frames are 112x112; padding adds a
// 100px black border so the re-run tool has room to draw near the edges, and
// the final crop removes 75px per side from the tracked result.
const (
	compiledVideoName   = "face_aligned.mp4"
	overlayVideoName    = "openface_aligned.mp4"
	alignedFramePattern = "frame_det_00_%06d.bmp"
	framePadFilter      = "pad=iw+200:ih+200:100:100:black"
	overlayCropFilter   = "crop=162:162:75:75"
)

// Extractor runs the face-feature tool over role streams. It implements
// stage.Handler plus the Stasher and IdleObserver capabilities.
type Extractor struct {
	store  *store.Store
	cfg    *config.Config
	gates  *gate.Controller
	logger *slog.Logger

	scanner     procscan.Scanner
	spawnMarker func(key string) (*procscan.Marker, error)

	// stash holds the sibling stream of the last processed video. Single
	// slot: the worker drains it before the next general claim.
	stash *store.VideoStream

	// processed counts streams finished since the last idle cycle.
	processed int

	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewExtractor wires the stage against live collaborators.
func NewExtractor(cfg *config.Config, st *store.Store, gates *gate.Controller, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		store:  st,
		cfg:    cfg,
		gates:  gates,
		logger: logging.NewComponentLogger(logger, stageName),
		spawnMarker: func(key string) (*procscan.Marker, error) {
			return procscan.SpawnMarker(key, 0)
		},
	}
}

// WithCommandRunner overrides subprocess execution, for tests.
func (e *Extractor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	e.commandRunner = runner
}

// WithScanner overrides process-table scanning, for tests.
func (e *Extractor) WithScanner(scanner procscan.Scanner) {
	e.scanner = scanner
}

// WithMarkerSpawner overrides marker process creation, for tests.
func (e *Extractor) WithMarkerSpawner(spawn func(key string) (*procscan.Marker, error)) {
	e.spawnMarker = spawn
}

// Name identifies this stage in logs and status output.
func (e *Extractor) Name() string { return stageName }

type item struct {
	stream *store.VideoStream
}

func (i item) Key() string { return i.stream.StreamPath }

// Claim steps past streams whose path or interview another live process
// carries in its argv. Each busy stream is skipped once per poll; when the
// skips exceed max_instances the tool is saturated across instances and the
// queue is treated as drained.
func (e *Extractor) Claim(ctx context.Context) (stage.Item, error) {
	var exclude []string
	skips := 0
	for {
		stream, err := e.store.NextFaceExtCandidate(ctx, e.cfg.Studies, exclude...)
		if err != nil {
			return nil, err
		}
		if stream == nil {
			return nil, nil
		}

		busy, err := e.busy(stream)
		if err != nil {
			return nil, err
		}
		if !busy {
			return item{stream: stream}, nil
		}

		skips++
		e.logger.Warn("stream busy on another instance; skipping",
			logging.String(logging.FieldItem, stream.StreamPath),
			logging.Int("skips", skips))
		if skips > e.cfg.FaceExt.MaxInstances {
			e.logger.Info("extraction saturated across instances; treating queue as drained",
				logging.Int("skips", skips))
			return nil, nil
		}
		exclude = append(exclude, stream.StreamPath)
	}
}

func (e *Extractor) busy(stream *store.VideoStream) (bool, error) {
	running, err := e.scanner.IsRunning(stream.StreamPath)
	if err != nil || running {
		return running, err
	}
	return e.scanner.IsRunning(stream.InterviewName)
}

// TakeStashed hands the worker the sibling of the last processed stream. A
// stashed sibling that turned busy in the meantime is dropped back to the
// general queue.
func (e *Extractor) TakeStashed(ctx context.Context) (stage.Item, error) {
	if e.stash == nil {
		return nil, nil
	}
	stream := e.stash
	e.stash = nil

	busy, err := e.busy(stream)
	if err != nil {
		return nil, err
	}
	if busy {
		e.logger.Warn("stashed sibling busy on another instance; returning it to the queue",
			logging.String(logging.FieldItem, stream.StreamPath))
		return nil, nil
	}
	return item{stream: stream}, nil
}

// OnIdle asks the decrypt stage for more material once the stream queue is
// drained across all studies.
func (e *Extractor) OnIdle(ctx context.Context) error {
	if e.processed > 0 {
		e.logger.Info("extraction cycle complete", logging.Int("streams", e.processed))
		e.processed = 0
	}
	return e.gates.Request(ctx, gate.Decryption)
}

// Process extracts features from one stream, renders the landmark overlay,
// records the run, and stashes the sibling stream of the same source.
func (e *Extractor) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	stream := claimed.stream
	logger := logging.WithContext(ctx, e.logger)

	if _, err := os.Stat(stream.StreamPath); err != nil {
		return services.Wrap(services.ErrIntegrity, stageName, "verify input",
			fmt.Sprintf("recorded stream %s is missing on disk", stream.StreamPath), err)
	}

	outDir := e.outputDir(stream)

	marker, err := e.spawnMarker(stream.InterviewName)
	if err != nil {
		logger.Warn("marker process failed to start; other instances cannot see this job",
			logging.Error(err))
	}
	defer marker.Stop()

	started := time.Now()
	var attempts int
	supervisor := retry.Supervisor{
		Stage:       stageName,
		MaxAttempts: e.cfg.FaceExt.MaxRetry,
		Cleanup: func(context.Context) error {
			return os.RemoveAll(outDir)
		},
		Logger: logger,
	}
	err = supervisor.Run(ctx, stream.StreamPath, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		if err := e.run(ctx, e.cfg.FaceExt.Binary, "-f", stream.StreamPath, "-out_dir", outDir); err != nil {
			return err
		}
		if _, err := os.Stat(faceqc.FeatureCSVPath(outDir)); err != nil {
			return fmt.Errorf("feature csv missing after extraction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	extractSeconds := time.Since(started).Seconds()

	overlayPath := ""
	if e.cfg.FaceExt.Overlay {
		path, overlayErr := e.renderOverlay(ctx, stream, outDir)
		if overlayErr != nil {
			logger.Warn("overlay rendering failed; keeping extraction without overlay",
				logging.Error(overlayErr))
		} else {
			overlayPath = path
		}
	}

	record := &store.FaceRun{
		StreamPath:     stream.StreamPath,
		Study:          stream.Study,
		InterviewName:  stream.InterviewName,
		OutputDir:      outDir,
		Attempts:       attempts,
		OverlayPath:    overlayPath,
		ProcessSeconds: extractSeconds,
	}
	if err := e.store.RecordFaceRun(ctx, record); err != nil {
		// On contention the winner may share this output directory; leave it.
		return err
	}

	e.tidyOutput(logger, outDir)
	e.processed++
	logger.Info("face features extracted",
		logging.String("output_dir", outDir),
		logging.Int(logging.FieldAttempt, attempts),
		logging.Bool("overlay", overlayPath != ""),
		logging.Duration("elapsed", time.Since(started)))

	sibling, err := e.store.SiblingStreamCandidate(ctx, stream.VideoPath, stream.StreamPath)
	if err != nil {
		logger.Warn("sibling stream lookup failed", logging.Error(err))
		return nil
	}
	if sibling != nil {
		e.stash = sibling
		logger.Info("sibling stream stashed for immediate processing",
			logging.String(logging.FieldItem, sibling.StreamPath))
	}
	return nil
}

// HealthCheck verifies the extraction tool, the overlay renderer, and the
// store.
func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if e.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := exec.LookPath(e.cfg.FaceExt.Binary); err != nil {
		return stage.Unhealthyf(stageName, "extraction binary %q not found in PATH", e.cfg.FaceExt.Binary)
	}
	if e.cfg.FaceExt.Overlay {
		if _, err := exec.LookPath(e.cfg.FaceExt.FFmpegBinary); err != nil {
			return stage.Unhealthyf(stageName, "overlay renderer %q not found in PATH", e.cfg.FaceExt.FFmpegBinary)
		}
	}
	if err := e.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

// outputDir reuses the derived directory while it is absent or empty and
// uniquifies it otherwise, so artifacts of an earlier run are never clobbered.
func (e *Extractor) outputDir(stream *store.VideoStream) string {
	base := naming.FaceOutputDir(e.cfg.Paths.DataRoot, stream.Study, stream.InterviewName,
		filepath.Base(stream.StreamPath))
	entries, err := os.ReadDir(base)
	if err != nil || len(entries) == 0 {
		return base
	}
	e.logger.Warn("output directory occupied; uniquifying", logging.String("dir", base))
	return naming.Uniquify(base)
}

// renderOverlay turns the aligned face frames into a landmark overlay video:
// pad every frame, compile them into a clip, re-run the extractor on the clip
// so it draws its landmarks, and crop the tracked result back down.
func (e *Extractor) renderOverlay(ctx context.Context, stream *store.VideoStream, outDir string) (string, error) {
	alignedDir, err := findAlignedDir(outDir)
	if err != nil {
		return "", err
	}
	frames, err := filepath.Glob(filepath.Join(alignedDir, "*.bmp"))
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("no aligned frames under %s", alignedDir)
	}

	paddedDir, err := os.MkdirTemp("", stream.InterviewName+"_pad_")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(paddedDir)

	if err := e.padFrames(ctx, frames, paddedDir); err != nil {
		return "", err
	}

	compiled := filepath.Join(outDir, compiledVideoName)
	if err := e.run(ctx, e.cfg.FaceExt.FFmpegBinary,
		"-y", "-framerate", "25",
		"-i", filepath.Join(paddedDir, alignedFramePattern),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		compiled); err != nil {
		return "", fmt.Errorf("compile aligned frames: %w", err)
	}

	rerunDir, err := os.MkdirTemp("", stream.InterviewName+"_overlay_")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(rerunDir)

	if err := e.run(ctx, e.cfg.FaceExt.Binary, "-f", compiled, "-out_dir", rerunDir); err != nil {
		return "", fmt.Errorf("re-run extractor on compiled video: %w", err)
	}
	tracked, err := findTrackedVideo(rerunDir)
	if err != nil {
		return "", err
	}

	cropped := filepath.Join(rerunDir, overlayVideoName)
	if err := e.run(ctx, e.cfg.FaceExt.FFmpegBinary,
		"-y", "-i", tracked,
		"-filter:v", overlayCropFilter,
		"-an", cropped); err != nil {
		return "", fmt.Errorf("crop tracked video: %w", err)
	}

	// The rerun dir lives on temp storage; move across the device boundary
	// into the run's output directory.
	finalPath := filepath.Join(outDir, overlayVideoName)
	if err := fileutil.MoveFile(cropped, finalPath); err != nil {
		return "", fmt.Errorf("place overlay video: %w", err)
	}
	return finalPath, nil
}

// padFrames borders every aligned frame in parallel, half the host's cores at
// a time.
func (e *Extractor) padFrames(ctx context.Context, frames []string, destDir string) error {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	if workers > len(frames) {
		workers = len(frames)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	jobs := make(chan string)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range jobs {
				if ctx.Err() != nil {
					continue
				}
				dest := filepath.Join(destDir, filepath.Base(frame))
				if err := e.run(ctx, e.cfg.FaceExt.FFmpegBinary,
					"-y", "-v", "error", "-i", frame, "-vf", framePadFilter, dest); err != nil {
					fail(fmt.Errorf("pad frame %s: %w", filepath.Base(frame), err))
				}
			}
		}()
	}
	for _, frame := range frames {
		jobs <- frame
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// tidyOutput drops the bulk intermediates once the run is recorded: the
// aligned frame directory and the tool's binary feature dumps.
func (e *Extractor) tidyOutput(logger *slog.Logger, outDir string) {
	if alignedDir, err := findAlignedDir(outDir); err == nil {
		if err := os.RemoveAll(alignedDir); err != nil {
			logger.Warn("aligned frame cleanup failed", logging.Error(err))
		}
	}
	hogs, err := filepath.Glob(filepath.Join(outDir, "*.hog"))
	if err != nil {
		return
	}
	for _, hog := range hogs {
		if err := os.Remove(hog); err != nil {
			logger.Warn("feature dump cleanup failed", logging.Error(err))
		}
	}
}

func findAlignedDir(outDir string) (string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), "aligned") {
			return filepath.Join(outDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no aligned frame directory under %s", outDir)
}

func findTrackedVideo(dir string) (string, error) {
	videos, err := filepath.Glob(filepath.Join(dir, "*.avi"))
	if err != nil {
		return "", err
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("no tracked video under %s", dir)
	}
	return videos[0], nil
}

func (e *Extractor) run(ctx context.Context, name string, args ...string) error {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
