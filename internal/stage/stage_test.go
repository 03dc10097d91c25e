package stage

import (
	"testing"
)

func TestKeyItemKey(t *testing.T) {
	item := KeyItem("STUDYA/interview_alpha")
	if item.Key() != "STUDYA/interview_alpha" {
		t.Fatalf("unexpected key: %q", item.Key())
	}
}

func TestHealthy(t *testing.T) {
	h := Healthy("decrypt")
	if !h.Ready {
		t.Fatal("expected ready health")
	}
	if h.Name != "decrypt" || h.Detail != "" {
		t.Fatalf("unexpected health record: %+v", h)
	}
}

func TestUnhealthy(t *testing.T) {
	h := Unhealthy("transcribe", "whisper binary not found")
	if h.Ready {
		t.Fatal("expected unready health")
	}
	if h.Detail != "whisper binary not found" {
		t.Fatalf("unexpected detail: %q", h.Detail)
	}
}

func TestUnhealthyf(t *testing.T) {
	h := Unhealthyf("faceload", "endpoint %s returned %d", "http://localhost:5100", 503)
	if h.Ready {
		t.Fatal("expected unready health")
	}
	if h.Detail != "endpoint http://localhost:5100 returned 503" {
		t.Fatalf("unexpected detail: %q", h.Detail)
	}
}
