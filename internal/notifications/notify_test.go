package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aperture/internal/config"
	"aperture/internal/notifications"
)

type captured struct {
	title    string
	body     string
	tags     string
	priority string
}

func newCapturingServer(t *testing.T, got *[]captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read notification body: %v", err)
		}
		*got = append(*got, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func newNotifier(topic string) notifications.Notifier {
	cfg := config.Default()
	cfg.Notify.Topic = topic
	return notifications.New(&cfg)
}

func TestUnconfiguredTopicIsNoop(t *testing.T) {
	n := newNotifier("")
	if err := n.WorkerFailed(context.Background(), "decrypt", errors.New("boom")); err != nil {
		t.Fatalf("noop notifier returned error: %v", err)
	}
	if err := n.Test(context.Background()); err != nil {
		t.Fatalf("noop test returned error: %v", err)
	}
}

func TestWorkerFailedDelivers(t *testing.T) {
	var got []captured
	server := newCapturingServer(t, &got)
	n := newNotifier(server.URL)

	err := n.WorkerFailed(context.Background(), "faceext", errors.New("store unreachable"))
	if err != nil {
		t.Fatalf("WorkerFailed failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].title != "Aperture - Worker Stopped" {
		t.Fatalf("title = %q", got[0].title)
	}
	if !strings.Contains(got[0].body, "faceext") || !strings.Contains(got[0].body, "store unreachable") {
		t.Fatalf("body = %q", got[0].body)
	}
	if got[0].priority != "high" {
		t.Fatalf("priority = %q, want high", got[0].priority)
	}
	if got[0].tags != "aperture,worker,error" {
		t.Fatalf("tags = %q", got[0].tags)
	}
}

func TestQCRejectedDelivers(t *testing.T) {
	var got []captured
	server := newCapturingServer(t, &got)
	n := newNotifier(server.URL)

	err := n.QCRejected(context.Background(), "STUDYA", "interview_alpha", "/data/left.mp4", 0.62)
	if err != nil {
		t.Fatalf("QCRejected failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	for _, want := range []string{"STUDYA/interview_alpha", "62%", "/data/left.mp4"} {
		if !strings.Contains(got[0].body, want) {
			t.Fatalf("body %q lacks %q", got[0].body, want)
		}
	}
}

func TestInterviewReportedDelivers(t *testing.T) {
	var got []captured
	server := newCapturingServer(t, &got)
	n := newNotifier(server.URL)

	if err := n.InterviewReported(context.Background(), "STUDYA", "interview_alpha"); err != nil {
		t.Fatalf("InterviewReported failed: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].body, "STUDYA/interview_alpha") {
		t.Fatalf("deliveries = %+v", got)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	n := newNotifier(server.URL)

	err := n.Test(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected a 429 error, got %v", err)
	}
}
