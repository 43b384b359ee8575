package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// frameBytes is the size of one streamed frame: 20ms of PCM16 at 16 kHz.
const frameBytes = 640

// DeepgramSynthesizer streams synthesized speech from the Deepgram speak
// endpoint as linear16 PCM.
type DeepgramSynthesizer struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
	SampleRate int
}

// NewDeepgramSynthesizer creates a synthesizer for 16 kHz PCM16 output.
func NewDeepgramSynthesizer(apiKey, model, endpoint string) *DeepgramSynthesizer {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramSynthesizer{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   endpoint,
		SampleRate: 16000,
	}
}

// Stream synthesizes text and emits PCM16 frames as they arrive.
func (d *DeepgramSynthesizer) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)

		if d.APIKey == "" {
			errs <- ErrMissingAPIKey
			return
		}
		if text == "" {
			errs <- ErrEmptyText
			return
		}

		params := url.Values{}
		params.Set("model", d.Model)
		params.Set("encoding", "linear16")
		params.Set("sample_rate", strconv.Itoa(d.SampleRate))
		params.Set("container", "none")

		body, _ := json.Marshal(map[string]string{"text": text})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			d.Endpoint+"?"+params.Encode(), bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Authorization", "Token "+d.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("tts: request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			errs <- fmt.Errorf("tts: status=%d body=%s", resp.StatusCode, string(b))
			return
		}

		buf := make([]byte, frameBytes)
		for {
			n, err := io.ReadFull(resp.Body, buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				select {
				case errs <- fmt.Errorf("tts: read stream: %w", err):
				default:
				}
				return
			}
		}
	}()

	return frames, errs
}

// MockSynthesizer emits deterministic frames for tests.
type MockSynthesizer struct {
	// FrameCount is the number of frames emitted per call.
	FrameCount int

	// FrameSize is the byte length of each frame.
	FrameSize int

	// Delay pauses between frames, simulating synthesis pace.
	Delay time.Duration

	// Err, when set, is emitted instead of any frames.
	Err error
}

// Stream emits FrameCount frames of FrameSize bytes, each filled with its
// frame index.
func (m *MockSynthesizer) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, m.FrameCount)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)

		if m.Err != nil {
			errs <- m.Err
			return
		}

		size := m.FrameSize
		if size == 0 {
			size = frameBytes
		}

		for i := 0; i < m.FrameCount; i++ {
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return
				}
			}
			frame := make([]byte, size)
			for j := range frame {
				frame[j] = byte(i)
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errs
}
