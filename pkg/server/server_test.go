package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
	"github.com/sonara-ai/go-sonara/pkg/reply"
	"github.com/sonara-ai/go-sonara/pkg/session"
	"github.com/sonara-ai/go-sonara/pkg/stt"
	"github.com/sonara-ai/go-sonara/pkg/tts"
)

func testSessionConfig() session.Config {
	return session.Config{
		Settings: func() session.Settings {
			return session.Settings{Mode: protocol.ModeCommand, STT: stt.Config{APIKey: "test"}}
		},
		NewRecognizer: func(cfg stt.Config) stt.Recognizer { return stt.NewMockRecognizer(cfg) },
		Replies:       &reply.MockGenerator{Reply: "Ok."},
		Synth:         &tts.MockSynthesizer{FrameCount: 1, FrameSize: 640},
	}
}

func TestHealthz(t *testing.T) {
	s := New(":0", testSessionConfig(), nil)
	defer s.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestStats(t *testing.T) {
	s := New(":0", testSessionConfig(), nil)
	defer s.Shutdown()

	s.Registry().CountMessageIn(true)
	s.Registry().CountMessageOut()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	var stats session.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.MessagesIn != 1 || stats.AudioFramesIn != 1 || stats.MessagesOut != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ActiveSessions != 0 {
		t.Fatalf("ActiveSessions = %d, want 0", stats.ActiveSessions)
	}
}

func TestResetEndpoint(t *testing.T) {
	s := New(":0", testSessionConfig(), nil)
	defer s.Shutdown()

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var out map[string]int
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	if out["reset"] != 0 {
		t.Fatalf("reset = %d, want 0", out["reset"])
	}
}

func TestVoiceRequiresUpgrade(t *testing.T) {
	s := New(":0", testSessionConfig(), nil)
	defer s.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/ws/voice", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", resp.StatusCode)
	}
}
