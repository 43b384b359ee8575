package protocol

import (
	"bytes"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
	}{
		{"transcript", TypeTranscript, TranscriptData{Text: "hello", IsFinal: true}},
		{"set state", TypeSetState, SetStateData{State: StateListening}},
		{"error", TypeError, ErrorData{Message: "provider unavailable"}},
		{"nil data", TypeHeartbeat, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if tt.data == nil && msg.Data != nil {
				t.Errorf("nil payload should produce no data field")
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	original, err := NewTranscriptMessage("turn on the lights", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	raw, err := original.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Type != TypeTranscript {
		t.Errorf("type = %v, want %v", parsed.Type, TypeTranscript)
	}

	var data TranscriptData
	if err := parsed.ParseData(&data); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	if data.Text != "turn on the lights" || !data.IsFinal {
		t.Errorf("payload = %+v", data)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Errorf("expected error for malformed JSON")
	}
	if _, err := Parse([]byte(`{"data":{}}`)); err == nil {
		t.Errorf("expected error for missing type")
	}
}

func TestAudioChunkRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0xff, 0x7f}

	msg, err := NewAudioChunkMessage(pcm)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	raw, _ := msg.Bytes()
	parsed, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got, err := parsed.AudioPCM()
	if err != nil {
		t.Fatalf("decode pcm: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestTTSAudioRoundTrip(t *testing.T) {
	pcm := make([]byte, 640)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	msg, err := NewTTSAudioMessage(pcm)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := msg.TTSPCM()
	if err != nil {
		t.Fatalf("decode pcm: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("tts pcm mismatch")
	}
}

func TestStateValid(t *testing.T) {
	for _, s := range []State{StateIdle, StateListening, StateProcessing, StateSpeaking} {
		if !s.Valid() {
			t.Errorf("state %q should be valid", s)
		}
	}
	if State("DANCING").Valid() {
		t.Errorf("unknown state should be invalid")
	}
}
