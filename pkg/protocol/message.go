// Package protocol defines the WebSocket message types exchanged between a
// voice client and the session backend.
//
// Messages travel over a single persistent duplex connection per client.
// Within one direction delivery is FIFO; no ordering is assumed across
// directions.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Client → Server messages
	TypeAudioChunk       MessageType = "audio_chunk"       // One resampled PCM16 frame
	TypeStreamEnd        MessageType = "stream_end"        // Client finished sending audio
	TypeWakewordDetected MessageType = "wakeword_detected" // Wake phrase heard while idle
	TypeWakewordBargeIn  MessageType = "wakeword_barge_in" // Wake phrase heard while speaking
	TypeHeartbeat        MessageType = "heartbeat"         // Liveness ping

	// Server → Client messages
	TypeSTTSessionReady MessageType = "stt_session_ready" // Provider session established
	TypeTranscript      MessageType = "transcript"        // STT result
	TypeSetState        MessageType = "set_state"         // Authoritative state push
	TypeInterruptTTS    MessageType = "interrupt_tts"     // Stop playback immediately
	TypeTTSAudio        MessageType = "tts_audio"         // One frame of synthesized speech
	TypeSessionReset    MessageType = "session_reset"     // Force session back to idle
	TypeError           MessageType = "error"             // Non-fatal provider/session error
)

// Message is the base wrapper for all WebSocket messages.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the given payload.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type: msgType,
		Data: rawData,
	}, nil
}

// Parse decodes a raw JSON frame into a Message.
func Parse(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}
	return &msg, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// State is one turn-taking state of a voice session.
type State string

const (
	StateIdle       State = "IDLE"
	StateListening  State = "LISTENING"
	StateProcessing State = "PROCESSING"
	StateSpeaking   State = "SPEAKING"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateListening, StateProcessing, StateSpeaking:
		return true
	}
	return false
}

// EngineMode selects the STT engine configuration for a listening episode.
type EngineMode string

const (
	// ModeConversation uses ML-based end-of-turn detection and auto-resumes
	// listening after the assistant finishes speaking.
	ModeConversation EngineMode = "conversation"

	// ModeCommand uses timer-based endpointing for short discrete
	// instructions and returns to idle after each reply.
	ModeCommand EngineMode = "command"
)

// AudioChunkData carries one base64-encoded PCM16 frame at 16 kHz mono.
type AudioChunkData struct {
	Data string `json:"data"`
}

// TranscriptData is an STT result. Interim results never persist; final
// results are appended to the session's accumulated transcript.
type TranscriptData struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// SetStateData is an authoritative state push from the backend.
type SetStateData struct {
	State State `json:"state"`
}

// TTSAudioData carries one base64-encoded frame of synthesized speech.
type TTSAudioData struct {
	Data string `json:"data"`
}

// ErrorData describes a non-fatal provider or session error.
type ErrorData struct {
	Message string `json:"message"`
}
