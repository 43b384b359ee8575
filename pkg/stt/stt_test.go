package stt

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key should validate: %v", err)
	}

	missing := cfg
	missing.APIKey = ""
	if err := missing.Validate(); err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	badMode := cfg
	badMode.Mode = "dictation"
	if err := badMode.Validate(); err == nil {
		t.Errorf("expected error for unknown mode")
	}

	badRate := cfg
	badRate.SampleRate = 0
	if err := badRate.Validate(); err == nil {
		t.Errorf("expected error for zero sample rate")
	}
}

func TestEndpointURL_CommandMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	cfg.Mode = protocol.ModeCommand
	cfg.UtteranceEnd = 1200 * time.Millisecond
	cfg.Endpointing = 250 * time.Millisecond
	cfg.Numerals = true

	d := NewDeepgramRecognizer(cfg)
	raw := d.endpointURL()

	if !strings.Contains(raw, "/v1/listen?") {
		t.Fatalf("command mode should use the v1 listen endpoint, got %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()

	if q.Get("utterance_end_ms") != "1200" {
		t.Errorf("utterance_end_ms = %q", q.Get("utterance_end_ms"))
	}
	if q.Get("endpointing") != "250" {
		t.Errorf("endpointing = %q", q.Get("endpointing"))
	}
	if q.Get("smart_format") != "true" || q.Get("numerals") != "true" {
		t.Errorf("post-processing flags not passed through: %v", q)
	}
	if q.Get("encoding") != "linear16" || q.Get("sample_rate") != "16000" {
		t.Errorf("audio params wrong: %v", q)
	}
	if q.Get("eot_threshold") != "" {
		t.Errorf("command mode must not send conversation params")
	}
}

func TestEndpointURL_ConversationMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	cfg.Mode = protocol.ModeConversation
	cfg.EOTThreshold = 0.85
	cfg.EOTTimeout = 4 * time.Second

	d := NewDeepgramRecognizer(cfg)
	raw := d.endpointURL()

	if !strings.Contains(raw, "/v2/listen?") {
		t.Fatalf("conversation mode should use the v2 endpoint, got %s", raw)
	}

	u, _ := url.Parse(raw)
	q := u.Query()
	if q.Get("eot_threshold") != "0.85" {
		t.Errorf("eot_threshold = %q", q.Get("eot_threshold"))
	}
	if q.Get("eot_timeout_ms") != "4000" {
		t.Errorf("eot_timeout_ms = %q", q.Get("eot_timeout_ms"))
	}
	if q.Get("utterance_end_ms") != "" {
		t.Errorf("conversation mode must not send command params")
	}
}

func TestDeepgram_SendBeforeConnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	d := NewDeepgramRecognizer(cfg)

	if err := d.SendAudio([]byte{1, 2}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDeepgram_ConnectValidates(t *testing.T) {
	d := NewDeepgramRecognizer(Config{})
	if err := d.Connect(context.Background()); err != ErrMissingAPIKey {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandleFrame_ListenResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	d := NewDeepgramRecognizer(cfg)

	d.handleFrame([]byte(`{"type":"Results","is_final":true,"speech_final":true,` +
		`"channel":{"alternatives":[{"transcript":"turn on the lights","confidence":0.98}]}}`))

	select {
	case ev := <-d.Events():
		if ev.Text != "turn on the lights" || !ev.IsFinal || !ev.EndOfTurn {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("expected a transcript event")
	}
}

func TestHandleFrame_TurnInfo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	cfg.Mode = protocol.ModeConversation
	d := NewDeepgramRecognizer(cfg)

	d.handleFrame([]byte(`{"type":"TurnInfo","event":"Update","transcript":"hello"}`))
	d.handleFrame([]byte(`{"type":"TurnInfo","event":"EndOfTurn","transcript":"hello there"}`))

	first := <-d.Events()
	if first.Text != "hello" || first.IsFinal {
		t.Errorf("interim event = %+v", first)
	}

	second := <-d.Events()
	if second.Text != "hello there" || !second.IsFinal || !second.EndOfTurn {
		t.Errorf("end-of-turn event = %+v", second)
	}
}

func TestHandleFrame_MalformedDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	d := NewDeepgramRecognizer(cfg)

	d.handleFrame([]byte(`{not json`))
	d.handleFrame([]byte(`{"type":"Results","channel":{"alternatives":[]}}`))

	select {
	case ev := <-d.Events():
		t.Errorf("malformed frames must not produce events, got %+v", ev)
	default:
	}
}

func TestHandleFrame_ProviderError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "key"
	d := NewDeepgramRecognizer(cfg)

	d.handleFrame([]byte(`{"type":"Error","description":"bad audio"}`))

	select {
	case err := <-d.Errors():
		if !strings.Contains(err.Error(), "bad audio") {
			t.Errorf("error = %v", err)
		}
	default:
		t.Fatal("expected a provider error")
	}
}

func TestMockTracker_CountsConnections(t *testing.T) {
	tracker := NewMockTracker()
	factory := tracker.Factory()

	r1 := factory(DefaultConfig())
	if err := r1.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if tracker.Open() != 1 {
		t.Errorf("open = %d, want 1", tracker.Open())
	}

	_ = r1.Close()
	if tracker.Open() != 0 {
		t.Errorf("open after close = %d, want 0", tracker.Open())
	}

	r2 := factory(DefaultConfig())
	_ = r2.Connect(context.Background())
	defer r2.Close()

	if tracker.MaxOpen() != 1 {
		t.Errorf("max open = %d, want 1", tracker.MaxOpen())
	}
	if tracker.Created() != 2 {
		t.Errorf("created = %d, want 2", tracker.Created())
	}
}
