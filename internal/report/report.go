// Package report implements the final pipeline stage: consolidating an
// interview's face QC verdicts and transcripts into a single report file.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aperture/internal/config"
	"aperture/internal/language"
	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/notifications"
	"aperture/internal/services"
	"aperture/internal/stage"
	"aperture/internal/store"
)

const stageName = "report"

// Reporter renders one report per fully processed interview. It implements
// stage.Handler.
type Reporter struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Notifier
}

// NewReporter wires the stage against live collaborators.
func NewReporter(cfg *config.Config, st *store.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{
		store:    st,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, stageName),
		notifier: notifications.New(cfg),
	}
}

// Name identifies this stage in logs and status output.
func (r *Reporter) Name() string { return stageName }

type item struct {
	load *store.FaceLoad
}

func (i item) Key() string { return i.load.InterviewName }

// Claim returns the next interview with a completed face load and at least
// one transcript, or nil when none qualifies.
func (r *Reporter) Claim(ctx context.Context) (stage.Item, error) {
	load, err := r.store.NextReportCandidate(ctx, r.cfg.Studies)
	if err != nil {
		return nil, err
	}
	if load == nil {
		return nil, nil
	}
	return item{load: load}, nil
}

// Process gathers everything recorded for the interview and writes the
// rendered report. The report path is deterministic, so a contention loss
// leaves the winner's file untouched.
func (r *Reporter) Process(ctx context.Context, it stage.Item) error {
	claimed, ok := it.(item)
	if !ok {
		return services.Wrap(services.ErrValidation, stageName, "process",
			fmt.Sprintf("unexpected item type %T", it), nil)
	}
	load := claimed.load
	logger := logging.WithContext(ctx, r.logger)

	started := time.Now()
	doc, err := r.assemble(ctx, load)
	if err != nil {
		return err
	}

	format := r.cfg.Report.Format
	rendered, err := render(doc, format)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "render report",
			load.InterviewName, err)
	}

	outPath := naming.ReportPath(r.cfg.Paths.DataRoot, load.Study, load.InterviewName, format)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "create report directory",
			filepath.Dir(outPath), err)
	}
	if err := os.WriteFile(outPath, rendered, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "write report", outPath, err)
	}

	record := &store.Report{
		InterviewName: load.InterviewName,
		Study:         load.Study,
		ReportPath:    outPath,
	}
	if err := r.store.RecordReport(ctx, record); err != nil {
		return err
	}
	if err := r.notifier.InterviewReported(ctx, load.Study, load.InterviewName); err != nil {
		logger.Warn("completion notification not delivered", logging.Error(err))
	}

	logger.Info("report generated",
		logging.String(logging.FieldInterview, load.InterviewName),
		logging.String("report", outPath),
		logging.String("format", format),
		logging.Duration("elapsed", time.Since(started)))
	return nil
}

// HealthCheck verifies the store and that the configured format is renderable.
func (r *Reporter) HealthCheck(ctx context.Context) stage.Health {
	if r.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if _, err := render(&document{}, r.cfg.Report.Format); err != nil {
		return stage.Unhealthyf(stageName, "report format %q not renderable", r.cfg.Report.Format)
	}
	if err := r.store.Ping(ctx); err != nil {
		return stage.Unhealthyf(stageName, "store unreachable: %v", err)
	}
	return stage.Healthy(stageName)
}

// document is the consolidated view of one interview. Stream and transcript
// order follows the store's path ordering, so renders are reproducible.
type document struct {
	Interview   string              `json:"interview"`
	Study       string              `json:"study"`
	GeneratedAt time.Time           `json:"generated_at"`
	Streams     []streamSection     `json:"streams"`
	Transcripts []transcriptSection `json:"transcripts"`
}

type streamSection struct {
	Role           string  `json:"role"`
	StreamPath     string  `json:"stream_path"`
	FeatureDir     string  `json:"feature_dir"`
	FramesTotal    int     `json:"frames_total"`
	FramesSuccess  int     `json:"frames_success"`
	SuccessRatio   float64 `json:"success_ratio"`
	MeanConfidence float64 `json:"mean_confidence"`
	Passed         bool    `json:"passed"`
}

type transcriptSection struct {
	AudioPath       string  `json:"audio_path"`
	TranscriptPath  string  `json:"transcript_path"`
	Language        string  `json:"language"`
	SegmentCount    int     `json:"segment_count"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// assemble loads the interview's recorded results. Rows that were present at
// claim time but are gone now mean someone rewound the pipeline under us,
// which is an integrity stop rather than a retry.
func (r *Reporter) assemble(ctx context.Context, load *store.FaceLoad) (*document, error) {
	transcripts, err := r.store.TranscriptsForInterview(ctx, load.InterviewName)
	if err != nil {
		return nil, err
	}
	if len(transcripts) == 0 {
		return nil, services.Wrap(services.ErrIntegrity, stageName, "collect transcripts",
			fmt.Sprintf("transcripts for %s vanished after claim", load.InterviewName), nil)
	}
	runs, err := r.store.FaceRunsForInterview(ctx, load.InterviewName)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, services.Wrap(services.ErrIntegrity, stageName, "collect face runs",
			fmt.Sprintf("face runs for %s vanished after claim", load.InterviewName), nil)
	}

	doc := &document{
		Interview:   load.InterviewName,
		Study:       load.Study,
		GeneratedAt: time.Now().UTC(),
	}
	for _, run := range runs {
		qc, err := r.store.GetFaceQC(ctx, run.StreamPath)
		if err != nil {
			return nil, err
		}
		if qc == nil {
			return nil, services.Wrap(services.ErrIntegrity, stageName, "collect face qc",
				fmt.Sprintf("qc verdict for %s vanished after claim", run.StreamPath), nil)
		}
		section := streamSection{
			StreamPath:     run.StreamPath,
			FeatureDir:     run.OutputDir,
			FramesTotal:    qc.FramesTotal,
			FramesSuccess:  qc.FramesSuccess,
			SuccessRatio:   qc.SuccessRatio,
			MeanConfidence: qc.MeanConfidence,
			Passed:         qc.Passed,
		}
		if stream, err := r.store.GetVideoStream(ctx, run.StreamPath); err != nil {
			return nil, err
		} else if stream != nil {
			section.Role = stream.Role
		}
		doc.Streams = append(doc.Streams, section)
	}
	for _, transcript := range transcripts {
		doc.Transcripts = append(doc.Transcripts, transcriptSection{
			AudioPath:       transcript.AudioPath,
			TranscriptPath:  transcript.TranscriptPath,
			Language:        transcript.Language,
			SegmentCount:    transcript.SegmentCount,
			DurationSeconds: transcript.DurationSeconds,
		})
	}
	return doc, nil
}

func render(doc *document, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "text":
		return renderText(doc), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

func renderText(doc *document) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Interview report: %s\n", doc.Interview)
	fmt.Fprintf(&b, "Study: %s\n", doc.Study)
	fmt.Fprintf(&b, "Generated: %s\n\n", doc.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "Streams (%d):\n", len(doc.Streams))
	for _, s := range doc.Streams {
		verdict := "PASS"
		if !s.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s %s\n", verdict, s.Role, s.StreamPath)
		fmt.Fprintf(&b, "        frames %d/%d (%.1f%%), mean confidence %.2f\n",
			s.FramesSuccess, s.FramesTotal, s.SuccessRatio*100, s.MeanConfidence)
	}

	fmt.Fprintf(&b, "\nTranscripts (%d):\n", len(doc.Transcripts))
	for _, t := range doc.Transcripts {
		fmt.Fprintf(&b, "  %s\n", t.TranscriptPath)
		fmt.Fprintf(&b, "        %s, %d segments, %.1fs of audio\n",
			language.DisplayName(t.Language), t.SegmentCount, t.DurationSeconds)
	}
	return b.Bytes()
}
