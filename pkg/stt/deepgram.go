package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sonara-ai/go-sonara/internal/log"
	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

// DeepgramRecognizer streams audio to Deepgram over a WebSocket.
//
// The command engine uses the listen v1 endpoint with timer-based
// endpointing; the conversation engine uses the flux v2 endpoint with
// ML end-of-turn detection.
type DeepgramRecognizer struct {
	cfg Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	events  chan TranscriptEvent
	errs    chan error
	audioCh chan []byte
	stopCh  chan struct{}
}

// listen v1 result frame (command engine).
type listenResult struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

// flux v2 turn frame (conversation engine).
type turnInfo struct {
	Type          string  `json:"type"`
	Event         string  `json:"event"`
	Transcript    string  `json:"transcript"`
	EndOfTurnConf float64 `json:"end_of_turn_confidence"`
}

type providerError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// NewDeepgramRecognizer creates a recognizer for one listening episode.
func NewDeepgramRecognizer(cfg Config) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		cfg:     cfg,
		events:  make(chan TranscriptEvent, 64),
		errs:    make(chan error, 4),
		audioCh: make(chan []byte, 256),
		stopCh:  make(chan struct{}),
	}
}

// NewDeepgram is a Factory for DeepgramRecognizer.
func NewDeepgram(cfg Config) Recognizer {
	return NewDeepgramRecognizer(cfg)
}

// endpointURL builds the provider URL for the configured engine mode.
func (d *DeepgramRecognizer) endpointURL() string {
	params := url.Values{}
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	params.Set("channels", "1")

	if d.cfg.Mode == protocol.ModeConversation {
		params.Set("model", "flux-general-en")
		params.Set("eot_threshold", strconv.FormatFloat(d.cfg.EOTThreshold, 'f', -1, 64))
		params.Set("eot_timeout_ms", strconv.FormatInt(d.cfg.EOTTimeout.Milliseconds(), 10))
		return fmt.Sprintf("%s/v2/listen?%s", d.cfg.BaseURL, params.Encode())
	}

	params.Set("interim_results", "true")
	params.Set("utterance_end_ms", strconv.FormatInt(d.cfg.UtteranceEnd.Milliseconds(), 10))
	params.Set("endpointing", strconv.FormatInt(d.cfg.Endpointing.Milliseconds(), 10))
	params.Set("smart_format", strconv.FormatBool(d.cfg.SmartFormat))
	params.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	params.Set("numerals", strconv.FormatBool(d.cfg.Numerals))
	params.Set("filler_words", strconv.FormatBool(d.cfg.FillerWords))
	params.Set("profanity_filter", strconv.FormatBool(d.cfg.ProfanityFilter))
	return fmt.Sprintf("%s/v1/listen?%s", d.cfg.BaseURL, params.Encode())
}

// Connect dials the provider. The handshake is bounded by DialTimeout.
func (d *DeepgramRecognizer) Connect(ctx context.Context) error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}
	if d.closed {
		return ErrNotConnected
	}

	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.DialTimeout}
	headers := map[string][]string{
		"Authorization": {"Token " + d.cfg.APIKey},
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, d.endpointURL(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stt: provider handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stt: provider dial failed: %w", err)
	}

	d.conn = conn
	d.connected = true

	go d.readLoop()
	go d.writeLoop()

	log.Debug("stt provider connected", "mode", string(d.cfg.Mode))
	return nil
}

// SendAudio queues one PCM16 frame for the provider.
func (d *DeepgramRecognizer) SendAudio(pcm []byte) error {
	d.mu.RLock()
	connected := d.connected
	d.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	select {
	case d.audioCh <- pcm:
		return nil
	default:
		// Provider is slower than real time; dropping one frame beats
		// stalling the session task.
		log.Warn("stt audio buffer full, dropping frame")
		return nil
	}
}

// Events returns the transcript event channel.
func (d *DeepgramRecognizer) Events() <-chan TranscriptEvent { return d.events }

// Errors returns the provider error channel.
func (d *DeepgramRecognizer) Errors() <-chan error { return d.errs }

// IsConnected reports whether the provider connection is open.
func (d *DeepgramRecognizer) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Close tears down the connection and closes the event channel.
func (d *DeepgramRecognizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	close(d.stopCh)
	if d.conn != nil {
		_ = d.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = d.conn.Close()
		d.conn = nil
	}
	d.connected = false
	return nil
}

func (d *DeepgramRecognizer) writeLoop() {
	for {
		select {
		case <-d.stopCh:
			return
		case pcm := <-d.audioCh:
			d.mu.RLock()
			conn := d.conn
			d.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				d.emitErr(fmt.Errorf("stt: send audio: %w", err))
				return
			}
		}
	}
}

func (d *DeepgramRecognizer) readLoop() {
	// readLoop is the only sender on d.events, so it owns closing it.
	defer close(d.events)

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.mu.RLock()
		conn := d.conn
		d.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-d.stopCh:
				// Closed locally; not a provider failure.
			default:
				d.emitErr(fmt.Errorf("stt: provider read: %w", err))
			}
			return
		}

		d.handleFrame(raw)
	}
}

func (d *DeepgramRecognizer) handleFrame(raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		log.Warn("stt: malformed provider frame dropped", "err", err)
		return
	}

	switch head.Type {
	case "Results":
		var res listenResult
		if err := json.Unmarshal(raw, &res); err != nil {
			log.Warn("stt: bad results frame", "err", err)
			return
		}
		if len(res.Channel.Alternatives) == 0 {
			return
		}
		text := res.Channel.Alternatives[0].Transcript
		if text == "" && !res.SpeechFinal {
			return
		}
		d.emit(TranscriptEvent{
			Text:      text,
			IsFinal:   res.IsFinal,
			EndOfTurn: res.SpeechFinal,
		})

	case "UtteranceEnd":
		d.emit(TranscriptEvent{IsFinal: true, EndOfTurn: true})

	case "TurnInfo":
		var info turnInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			log.Warn("stt: bad turn frame", "err", err)
			return
		}
		switch info.Event {
		case "Update":
			d.emit(TranscriptEvent{Text: info.Transcript})
		case "EndOfTurn":
			d.emit(TranscriptEvent{Text: info.Transcript, IsFinal: true, EndOfTurn: true})
		}

	case "Error":
		var perr providerError
		if err := json.Unmarshal(raw, &perr); err != nil {
			d.emitErr(fmt.Errorf("stt: provider error"))
			return
		}
		d.emitErr(fmt.Errorf("stt: provider error: %s", perr.Description))

	case "Metadata", "Connected", "SpeechStarted", "StartOfTurn":
		// Informational frames; nothing to forward.

	default:
		log.Debug("stt: unhandled provider frame", "type", head.Type)
	}
}

func (d *DeepgramRecognizer) emit(ev TranscriptEvent) {
	select {
	case d.events <- ev:
	case <-d.stopCh:
	}
}

func (d *DeepgramRecognizer) emitErr(err error) {
	select {
	case d.errs <- err:
	default:
	}
}
