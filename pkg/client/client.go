// Package client implements the device side of the voice engine: mic
// capture, the authoritative-state follower, reply playback, and the
// auto-submit debouncer for command mode.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonara-ai/go-sonara/pkg/audioio"
	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

// Config holds client settings.
type Config struct {
	// ServerURL is the base WebSocket URL, e.g. ws://localhost:8080.
	ServerURL string

	// Mode selects the endpointing engine the backend should run.
	Mode protocol.EngineMode

	// AutoSubmit enables the command-mode debouncer that submits the
	// staged utterance after a quiet period.
	AutoSubmit bool

	// AutoSubmitDelay is the debounce quiet period.
	AutoSubmitDelay time.Duration

	// HeartbeatInterval is how often the client pings the backend.
	HeartbeatInterval time.Duration

	Playback SchedulerConfig

	Logger *slog.Logger
}

// Client is one voice endpoint. The backend owns the turn-taking state;
// the client follows every set_state push and never infers transitions.
type Client struct {
	cfg    Config
	log    *slog.Logger
	source audioio.Source
	sink   audioio.Sink
	sched  *Scheduler
	deb    *Debouncer

	conn    *websocket.Conn
	writeMu sync.Mutex

	state     atomic.Value // protocol.State
	accepting atomic.Bool  // reply audio currently accepted

	stopCh   chan struct{}
	stopOnce sync.Once

	// OnTranscript is called for every transcript push.
	OnTranscript func(text string, isFinal bool)
	// OnState is called after each followed state transition.
	OnState func(state protocol.State)
	// OnError is called for backend error messages.
	OnError func(message string)
}

// New creates a client reading from source and playing through sink.
func New(cfg Config, source audioio.Source, sink audioio.Sink) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		log:    logger,
		source: source,
		sink:   sink,
		sched:  NewScheduler(cfg.Playback, sink, logger),
		stopCh: make(chan struct{}),
	}
	c.state.Store(protocol.StateIdle)
	c.deb = NewDebouncer(cfg.AutoSubmitDelay, c.submitStaged)
	return c
}

// State returns the last state pushed by the backend.
func (c *Client) State() protocol.State {
	return c.state.Load().(protocol.State)
}

// Connect dials the backend voice endpoint.
func (c *Client) Connect(ctx context.Context) error {
	url := c.cfg.ServerURL + "/ws/voice"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c.conn = conn
	c.log.Info("connected", "url", url)
	return nil
}

// Run starts capture, playback, and heartbeats, then blocks reading
// backend messages until the connection drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.sink.Start(runCtx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}
	defer c.sink.Stop()

	if err := c.source.Start(runCtx); err != nil {
		return fmt.Errorf("start source: %w", err)
	}
	defer c.source.Stop()

	go c.sched.Run(runCtx)
	go c.micLoop(runCtx)
	if c.cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(runCtx)
	}

	go func() {
		select {
		case <-runCtx.Done():
		case <-c.stopCh:
		}
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return nil
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("read: %w", err)
			}
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			c.log.Warn("malformed message dropped", "err", err)
			continue
		}
		c.handle(msg)
	}
}

// Close terminates the client.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Activate asks the backend to start a listening episode. Wake word
// detection and push-to-talk both go through here.
func (c *Client) Activate() error {
	return c.sendType(protocol.TypeWakewordDetected)
}

// BargeIn interrupts the backend's reply while it is speaking.
func (c *Client) BargeIn() error {
	return c.sendType(protocol.TypeWakewordBargeIn)
}

// Submit ends the current utterance explicitly.
func (c *Client) Submit() error {
	return c.sendType(protocol.TypeStreamEnd)
}

// submitStaged is the debouncer callback. The quiet period may outlive
// the episode, so it re-checks the authoritative state before firing.
func (c *Client) submitStaged() {
	if c.State() != protocol.StateListening {
		return
	}
	if err := c.Submit(); err != nil {
		c.log.Warn("auto-submit failed", "err", err)
	}
}

func (c *Client) handle(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSetState:
		var data protocol.SetStateData
		if err := msg.ParseData(&data); err != nil || !data.State.Valid() {
			c.log.Warn("bad state push dropped", "err", err)
			return
		}
		c.followState(data.State)

	case protocol.TypeTranscript:
		var data protocol.TranscriptData
		if err := msg.ParseData(&data); err != nil {
			return
		}
		if c.OnTranscript != nil {
			c.OnTranscript(data.Text, data.IsFinal)
		}
		if data.IsFinal && c.cfg.AutoSubmit && c.cfg.Mode == protocol.ModeCommand &&
			c.State() == protocol.StateListening {
			c.deb.Poke()
		}

	case protocol.TypeTTSAudio:
		if !c.accepting.Load() {
			// Stale frames after an interrupt are dropped unplayed.
			return
		}
		pcm, err := msg.TTSPCM()
		if err != nil {
			c.log.Warn("bad reply frame dropped", "err", err)
			return
		}
		c.sched.Enqueue(pcm)

	case protocol.TypeInterruptTTS:
		c.accepting.Store(false)
		c.sched.Interrupt()

	case protocol.TypeSessionReset:
		c.accepting.Store(false)
		c.sched.Interrupt()
		c.deb.Cancel()

	case protocol.TypeSTTSessionReady:
		c.log.Debug("stt session ready")

	case protocol.TypeError:
		var data protocol.ErrorData
		if err := msg.ParseData(&data); err != nil {
			return
		}
		c.log.Warn("backend error", "message", data.Message)
		if c.OnError != nil {
			c.OnError(data.Message)
		}

	default:
		c.log.Warn("unexpected message dropped", "type", string(msg.Type))
	}
}

func (c *Client) followState(next protocol.State) {
	prev := c.State()
	c.state.Store(next)

	switch next {
	case protocol.StateSpeaking:
		// A fresh reply stream begins; re-arm playback.
		c.accepting.Store(true)
		c.sched.Begin()
	default:
		if prev == protocol.StateSpeaking && c.accepting.Load() {
			// Natural end of synthesis: let the tail play out.
			c.sched.Drain()
		}
	}
	if next != protocol.StateListening {
		c.deb.Cancel()
	}

	c.log.Debug("state", "state", string(next))
	if c.OnState != nil {
		c.OnState(next)
	}
}

// micLoop forwards captured audio while the backend is listening. Frames
// are resampled to the wire rate before sending.
func (c *Client) micLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-c.source.Stream():
			if !ok {
				return
			}
			if c.State() != protocol.StateListening {
				continue
			}

			samples := chunk.Samples
			if chunk.SampleRate != audioio.WireRate {
				samples = audioio.Resample(samples, chunk.SampleRate, audioio.WireRate)
			}

			msg, err := protocol.NewAudioChunkMessage(audioio.SamplesToBytes(samples))
			if err != nil {
				continue
			}
			if err := c.send(msg); err != nil {
				c.log.Warn("send audio failed", "err", err)
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendType(protocol.TypeHeartbeat); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendType(t protocol.MessageType) error {
	msg, err := protocol.NewMessage(t, nil)
	if err != nil {
		return err
	}
	return c.send(msg)
}

func (c *Client) send(msg *protocol.Message) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
