package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aperture/internal/config"
)

const userAgent = "Aperture/0.1.0"

// Notifier is the alert surface workers and stages publish to.
type Notifier interface {
	// WorkerFailed reports a worker that stopped on a fatal error and needs
	// an operator before its queue moves again.
	WorkerFailed(ctx context.Context, stage string, cause error) error
	// QCRejected reports a stream whose face features failed quality
	// control and await manual review.
	QCRejected(ctx context.Context, study, interview, streamPath string, successRatio float64) error
	// InterviewReported announces a fully processed interview.
	InterviewReported(ctx context.Context, study, interview string) error
	// Test sends a delivery check, for doctor runs.
	Test(ctx context.Context) error
}

// New builds a Notifier from the configured topic. An empty topic yields a
// no-op implementation.
func New(cfg *config.Config) Notifier {
	topic := strings.TrimSpace(cfg.Notify.Topic)
	if topic == "" {
		return noop{}
	}
	timeout := time.Duration(cfg.Notify.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfy{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfy struct {
	endpoint string
	client   *http.Client
}

func (n *ntfy) WorkerFailed(ctx context.Context, stage string, cause error) error {
	detail := "unknown"
	if cause != nil {
		detail = strings.TrimSpace(cause.Error())
	}
	return n.send(ctx, message{
		title:    "Aperture - Worker Stopped",
		body:     fmt.Sprintf("The %s worker stopped on a fatal error: %s", stage, detail),
		tags:     []string{"aperture", "worker", "error"},
		priority: "high",
	})
}

func (n *ntfy) QCRejected(ctx context.Context, study, interview, streamPath string, successRatio float64) error {
	return n.send(ctx, message{
		title: "Aperture - QC Rejected",
		body: fmt.Sprintf("Face QC rejected %s/%s (%.0f%% usable frames)\n%s\nManual review required",
			study, interview, successRatio*100, streamPath),
		tags: []string{"aperture", "faceqc", "review"},
	})
}

func (n *ntfy) InterviewReported(ctx context.Context, study, interview string) error {
	return n.send(ctx, message{
		title: "Aperture - Interview Complete",
		body:  fmt.Sprintf("Report ready for %s/%s", study, interview),
		tags:  []string{"aperture", "report", "completed"},
	})
}

func (n *ntfy) Test(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "Aperture - Test",
		body:     "Notification delivery test",
		tags:     []string{"aperture", "test"},
		priority: "low",
	})
}

func (n *ntfy) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noop struct{}

func (noop) WorkerFailed(context.Context, string, error) error                 { return nil }
func (noop) QCRejected(context.Context, string, string, string, float64) error { return nil }
func (noop) InterviewReported(context.Context, string, string) error           { return nil }
func (noop) Test(context.Context) error                                        { return nil }
