// Package tts converts assistant text into streamed PCM16 audio frames.
//
// Synthesis is a collaborator of the session engine: it produces a lazy,
// finite, non-restartable frame sequence that the session consumes
// incrementally, so playback can begin before synthesis completes.
package tts

import (
	"context"
	"errors"
)

// Common errors returned by synthesizers.
var (
	ErrMissingAPIKey = errors.New("tts: missing API key")
	ErrEmptyText     = errors.New("tts: empty text")
)

// Synthesizer converts text to a stream of PCM16 frames at 16 kHz mono.
type Synthesizer interface {
	// Stream starts synthesis and returns a frame channel and an error
	// channel. Both channels are closed when synthesis finishes or the
	// context is canceled. The frame sequence cannot be restarted.
	Stream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}
