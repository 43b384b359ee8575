// Package stt provides streaming speech-to-text provider clients.
//
// A Recognizer wraps one upstream provider connection. Transcripts are
// delivered over a channel so the session's consumer task is the only
// code touching session state; provider callbacks never re-enter it.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

// Common errors returned by recognizers.
var (
	ErrNotConnected     = errors.New("stt: recognizer not connected")
	ErrAlreadyConnected = errors.New("stt: recognizer already connected")
	ErrMissingAPIKey    = errors.New("stt: missing API key")
)

// TranscriptEvent is one result from the provider.
type TranscriptEvent struct {
	// Text is the transcript fragment.
	Text string

	// IsFinal indicates the provider will not revise this fragment.
	IsFinal bool

	// EndOfTurn indicates the provider judged the utterance complete.
	// Only the conversation engine emits this; the command engine relies
	// on timer-based endpointing surfaced as a final fragment followed by
	// an utterance-end event.
	EndOfTurn bool
}

// Recognizer is a streaming speech-to-text session.
//
// A Recognizer is exclusively owned by one voice session. It is created
// lazily when listening starts and closed when listening stops; it is
// never pooled or shared.
type Recognizer interface {
	// Connect establishes the provider connection. The dial is bounded by
	// the configured timeout; ctx cancellation aborts it early.
	Connect(ctx context.Context) error

	// SendAudio forwards one PCM16 frame to the provider.
	SendAudio(pcm []byte) error

	// Events returns the transcript event channel. It is closed when the
	// provider connection ends.
	Events() <-chan TranscriptEvent

	// Errors returns the channel for provider-initiated failures.
	Errors() <-chan error

	// IsConnected reports whether the provider connection is open.
	IsConnected() bool

	// Close tears down the provider connection.
	// It is safe to call Close multiple times.
	Close() error
}

// Factory creates a Recognizer for one listening episode. The engine mode
// and its parameters are fixed in cfg at creation; a settings change
// mid-episode cannot affect an in-flight session.
type Factory func(cfg Config) Recognizer

// Config holds provider connection settings for one listening episode.
type Config struct {
	// APIKey authenticates with the provider.
	APIKey string

	// BaseURL is the provider endpoint, e.g. "wss://api.deepgram.com".
	BaseURL string

	// Mode selects the engine configuration.
	Mode protocol.EngineMode

	// SampleRate of the audio frames sent, in Hz.
	SampleRate int

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// Conversation engine: ML end-of-turn detection.
	EOTThreshold float64       // confidence required to declare end of turn
	EOTTimeout   time.Duration // ceiling before end of turn is forced

	// Command engine: timer-based endpointing.
	UtteranceEnd time.Duration // silence window closing an utterance
	Endpointing  time.Duration // pause threshold within an utterance

	// Command engine transcript post-processing. These are passed through
	// to the provider unchanged.
	SmartFormat     bool
	Punctuate       bool
	Numerals        bool
	FillerWords     bool
	ProfanityFilter bool
}

// DefaultConfig returns provider settings suitable for 16 kHz voice frames.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "wss://api.deepgram.com",
		Mode:         protocol.ModeCommand,
		SampleRate:   16000,
		DialTimeout:  10 * time.Second,
		EOTThreshold: 0.7,
		EOTTimeout:   5 * time.Second,
		UtteranceEnd: time.Second,
		Endpointing:  300 * time.Millisecond,
		SmartFormat:  true,
		Punctuate:    true,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Mode != protocol.ModeConversation && c.Mode != protocol.ModeCommand {
		return fmt.Errorf("stt: unknown engine mode %q", c.Mode)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("stt: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("stt: dial timeout must be positive, got %v", c.DialTimeout)
	}
	return nil
}
