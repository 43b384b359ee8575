// Package session implements the backend voice session engine: the
// per-connection turn-taking state machine, the STT provider session
// lifecycle, and barge-in interruption.
//
// Each session runs as a single task. Transport messages, provider
// transcripts, and synthesized frames all arrive over channels consumed
// by that one task, so session state is never touched concurrently.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
	"github.com/sonara-ai/go-sonara/pkg/reply"
	"github.com/sonara-ai/go-sonara/pkg/stt"
	"github.com/sonara-ai/go-sonara/pkg/tts"
)

// Sender delivers outbound protocol messages to the client. Message order
// is preserved per connection.
type Sender interface {
	Send(msg *protocol.Message) error
}

// Settings is a snapshot of the user's current voice configuration. It is
// taken once at listen-start; a settings change mid-episode never affects
// an in-flight provider session.
type Settings struct {
	Mode protocol.EngineMode
	STT  stt.Config
}

// Config wires a session's collaborators.
type Config struct {
	// Settings returns the current voice settings. Called at listen-start.
	Settings func() Settings

	// NewRecognizer creates the STT provider session for one episode.
	NewRecognizer stt.Factory

	// Replies generates the assistant reply for a finished utterance.
	Replies reply.Generator

	// Synth converts reply text into PCM16 frames.
	Synth tts.Synthesizer

	// HeartbeatInterval is how long a session may go without any inbound
	// message before it is torn down. Zero disables the check.
	HeartbeatInterval time.Duration

	// ReplyTimeout bounds one reply generation call.
	ReplyTimeout time.Duration

	// OnTeardown is invoked once when the session task exits.
	OnTeardown func(s *Session)

	Logger *slog.Logger
}

// speakEpisode is one in-flight reply synthesis. Barge-in cancels the
// episode; its remaining frames are never read.
type speakEpisode struct {
	frames chan []byte
	errs   chan error
	cancel context.CancelFunc

	mu        sync.Mutex
	replyText string
	user      string
}

func (e *speakEpisode) setReply(user, text string) {
	e.mu.Lock()
	e.user = user
	e.replyText = text
	e.mu.Unlock()
}

func (e *speakEpisode) exchange() (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user, e.replyText
}

// Session is one connected voice client.
type Session struct {
	id   string
	cfg  Config
	send Sender
	log  *slog.Logger

	inbound  chan *protocol.Message
	stopCh   chan struct{}
	stopOnce sync.Once

	// published for concurrent readers
	stateVal      atomic.Value // protocol.State
	transcriptVal atomic.Value // string
	lastSeen      atomic.Int64 // unix nanos

	// owned exclusively by the run task
	state       protocol.State
	mode        protocol.EngineMode
	rec         stt.Recognizer
	recEvents   <-chan stt.TranscriptEvent
	recErrs     <-chan error
	accumulated []string
	history     []reply.Turn
	speak       *speakEpisode
}

// New creates a session. Start must be called to begin processing.
func New(id string, cfg Config, send Sender) *Session {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:      id,
		cfg:     cfg,
		send:    send,
		log:     logger.With("session_id", id),
		inbound: make(chan *protocol.Message, 1024),
		stopCh:  make(chan struct{}),
		state:   protocol.StateIdle,
	}
	s.stateVal.Store(protocol.StateIdle)
	s.transcriptVal.Store("")
	s.lastSeen.Store(time.Now().UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current turn-taking state.
func (s *Session) State() protocol.State {
	return s.stateVal.Load().(protocol.State)
}

// PendingTranscript returns the utterance fragments finalized so far,
// joined with spaces. It is empty outside a listening episode.
func (s *Session) PendingTranscript() string {
	return s.transcriptVal.Load().(string)
}

// LastSeen returns the time of the last inbound message.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Start launches the session task.
func (s *Session) Start(ctx context.Context) {
	go s.run(ctx)
}

// Deliver enqueues one inbound transport message. Messages are processed
// in delivery order. Frames arriving faster than the session can drain
// are dropped rather than blocking the transport reader.
func (s *Session) Deliver(msg *protocol.Message) {
	s.lastSeen.Store(time.Now().UnixNano())
	select {
	case s.inbound <- msg:
	case <-s.stopCh:
	default:
		s.log.Warn("session inbound queue full, dropping message", "type", string(msg.Type))
	}
}

// Reset forces the session back to idle, discarding all buffers. Safe to
// call from any goroutine and idempotent.
func (s *Session) Reset() {
	msg, _ := protocol.NewMessage(protocol.TypeSessionReset, nil)
	s.Deliver(msg)
}

// Stop terminates the session task.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Session) run(ctx context.Context) {
	defer s.teardown()

	var heartbeatCh <-chan time.Time
	if s.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval / 2)
		defer ticker.Stop()
		heartbeatCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return

		case msg := <-s.inbound:
			s.handleMessage(ctx, msg)

		case ev, ok := <-s.recEvents:
			if !ok {
				// Provider closed the stream without an error frame.
				s.recEvents = nil
				continue
			}
			s.handleTranscript(ctx, ev)

		case err, ok := <-s.recErrs:
			if !ok {
				s.recErrs = nil
				continue
			}
			s.handleProviderError(err)

		case frame, ok := <-s.speakFrames():
			if !ok {
				s.finishSpeaking(ctx)
				continue
			}
			s.handleSpeakFrame(frame)

		case err, ok := <-s.speakErrs():
			if !ok {
				continue
			}
			s.handleSpeakError(err)

		case <-heartbeatCh:
			if time.Since(s.LastSeen()) > s.cfg.HeartbeatInterval {
				s.log.Info("session heartbeat expired, tearing down")
				return
			}
		}
	}
}

// speakFrames returns the active episode's frame channel, or nil when no
// reply is in flight so the select arm stays disabled.
func (s *Session) speakFrames() <-chan []byte {
	if s.speak == nil {
		return nil
	}
	return s.speak.frames
}

func (s *Session) speakErrs() <-chan error {
	if s.speak == nil {
		return nil
	}
	return s.speak.errs
}

func (s *Session) handleMessage(ctx context.Context, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeAudioChunk:
		// Frames are forwarded to the provider only while listening.
		if s.state != protocol.StateListening || s.rec == nil {
			return
		}
		pcm, err := msg.AudioPCM()
		if err != nil {
			s.log.Warn("bad audio chunk dropped", "err", err)
			return
		}
		if err := s.rec.SendAudio(pcm); err != nil {
			s.log.Warn("forward audio failed", "err", err)
		}

	case protocol.TypeStreamEnd:
		if s.state == protocol.StateListening {
			s.beginProcessing(ctx)
		}

	case protocol.TypeWakewordDetected:
		// Listen-start: explicit activation and wake detection share
		// this signal.
		if s.state == protocol.StateIdle {
			s.startListening(ctx)
		}

	case protocol.TypeWakewordBargeIn:
		if s.state == protocol.StateSpeaking {
			s.bargeIn(ctx)
		}

	case protocol.TypeHeartbeat:
		// Liveness only; Deliver already refreshed the deadline.

	case protocol.TypeSessionReset:
		s.reset()

	default:
		s.log.Warn("unexpected message dropped", "type", string(msg.Type))
	}
}

// startListening opens the provider session and enters LISTENING.
// Settings are snapshotted here so the episode's engine mode is immutable.
func (s *Session) startListening(ctx context.Context) {
	set := s.cfg.Settings()
	sttCfg := set.STT
	sttCfg.Mode = set.Mode

	dialTimeout := sttCfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	rec := s.cfg.NewRecognizer(sttCfg)
	connectCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	err := rec.Connect(connectCtx)
	cancel()
	if err != nil {
		_ = rec.Close()
		s.log.Warn("provider connect failed", "err", err)
		s.sendError("speech recognition unavailable: " + err.Error())
		s.forceIdle()
		return
	}

	s.rec = rec
	s.recEvents = rec.Events()
	s.recErrs = rec.Errors()
	s.mode = set.Mode
	s.setAccumulated(nil)

	s.sendType(protocol.TypeSTTSessionReady)
	s.setState(protocol.StateListening)
}

func (s *Session) closeRecognizer() {
	if s.rec != nil {
		_ = s.rec.Close()
		s.rec = nil
	}
	s.recEvents = nil
	s.recErrs = nil
}

func (s *Session) handleTranscript(ctx context.Context, ev stt.TranscriptEvent) {
	if s.state != protocol.StateListening {
		return
	}

	if ev.Text != "" {
		if msg, err := protocol.NewTranscriptMessage(ev.Text, ev.IsFinal); err == nil {
			s.sendMsg(msg)
		}
		if ev.IsFinal {
			s.setAccumulated(append(s.accumulated, ev.Text))
		}
	}

	// The conversation engine owns end-of-turn; in command mode the
	// client's debouncer decides and sends stream_end.
	if ev.EndOfTurn && s.mode == protocol.ModeConversation {
		s.beginProcessing(ctx)
	}
}

func (s *Session) handleProviderError(err error) {
	s.log.Warn("provider error", "err", err)
	s.sendError(err.Error())
	// Finalized fragments were already forwarded to the client, so the
	// staged transcript survives there; the server recovers to idle.
	s.forceIdle()
}

// beginProcessing closes the provider session and hands the utterance to
// reply generation.
func (s *Session) beginProcessing(ctx context.Context) {
	s.closeRecognizer()

	utterance := strings.TrimSpace(strings.Join(s.accumulated, " "))
	s.setAccumulated(nil)
	if utterance == "" {
		s.setState(protocol.StateIdle)
		return
	}

	s.setState(protocol.StateProcessing)

	prompt := reply.BuildPrompt(s.history, utterance)

	speakCtx, cancel := context.WithCancel(ctx)
	ep := &speakEpisode{
		frames: make(chan []byte, 64),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	s.speak = ep

	go s.speakLoop(speakCtx, ep, prompt, utterance)
}

// speakLoop generates the reply and streams synthesized frames back to
// the session task. It runs outside the task; all it may touch is its
// own episode.
func (s *Session) speakLoop(ctx context.Context, ep *speakEpisode, prompt, utterance string) {
	defer close(ep.frames)
	defer close(ep.errs)

	replyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	text, err := s.cfg.Replies.Generate(replyCtx, prompt)
	cancel()
	if err != nil {
		select {
		case ep.errs <- err:
		case <-ctx.Done():
		}
		return
	}

	text = strings.TrimSpace(text)
	ep.setReply(utterance, text)
	if text == "" {
		return
	}

	for _, chunk := range reply.ChunkSentences(text) {
		if ctx.Err() != nil {
			return
		}

		frames, errs := s.cfg.Synth.Stream(ctx, chunk)
		for frames != nil || errs != nil {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					frames = nil
					continue
				}
				select {
				case ep.frames <- frame:
				case <-ctx.Done():
					return
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				select {
				case ep.errs <- err:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}

func (s *Session) handleSpeakFrame(frame []byte) {
	// First frame marks the start of audible speech.
	if s.state == protocol.StateProcessing {
		s.setState(protocol.StateSpeaking)
	}
	if s.state != protocol.StateSpeaking {
		return
	}
	if msg, err := protocol.NewTTSAudioMessage(frame); err == nil {
		s.sendMsg(msg)
	}
}

func (s *Session) handleSpeakError(err error) {
	s.log.Warn("reply synthesis failed", "err", err)
	s.sendError(err.Error())
	s.cancelSpeak()
	s.setState(protocol.StateIdle)
}

// finishSpeaking runs when the synthesis stream is exhausted naturally.
// Conversation mode resumes listening; command mode returns to rest.
func (s *Session) finishSpeaking(ctx context.Context) {
	if s.speak == nil {
		return
	}
	user, assistant := s.speak.exchange()
	s.speak.cancel()
	s.speak = nil

	if user != "" && assistant != "" {
		s.history = append(s.history,
			reply.Turn{Role: "USER", Text: user},
			reply.Turn{Role: "ASSISTANT", Text: assistant},
		)
	}

	if s.mode == protocol.ModeConversation {
		s.startListening(ctx)
		return
	}
	s.setState(protocol.StateIdle)
}

// bargeIn interrupts the current reply: playback stops immediately and
// listening resumes regardless of engine mode.
func (s *Session) bargeIn(ctx context.Context) {
	s.sendType(protocol.TypeInterruptTTS)

	if s.speak != nil {
		user, assistant := s.speak.exchange()
		if user != "" && assistant != "" {
			s.history = append(s.history,
				reply.Turn{Role: "USER", Text: user},
				reply.Turn{Role: "ASSISTANT", Text: assistant + " [interrupted]"},
			)
		}
	}
	s.cancelSpeak()
	s.startListening(ctx)
}

func (s *Session) cancelSpeak() {
	if s.speak != nil {
		s.speak.cancel()
		s.speak = nil
	}
}

// reset forces the session to idle from any state, discarding buffers.
// Applying it repeatedly is harmless.
func (s *Session) reset() {
	s.sendType(protocol.TypeSessionReset)
	s.forceIdle()
}

// forceIdle clears every in-flight resource and pushes IDLE.
func (s *Session) forceIdle() {
	s.closeRecognizer()
	s.cancelSpeak()
	s.setAccumulated(nil)
	s.setState(protocol.StateIdle)
}

// setAccumulated replaces the fragment buffer and republishes the
// joined transcript before any state change that depends on it.
func (s *Session) setAccumulated(fragments []string) {
	s.accumulated = fragments
	s.transcriptVal.Store(strings.Join(fragments, " "))
}

func (s *Session) teardown() {
	s.closeRecognizer()
	s.cancelSpeak()
	s.setAccumulated(nil)
	s.state = protocol.StateIdle
	s.stateVal.Store(protocol.StateIdle)
	s.Stop()

	if s.cfg.OnTeardown != nil {
		s.cfg.OnTeardown(s)
	}
	s.log.Debug("session task exited")
}

// setState records the transition and pushes it to the client. The push
// is authoritative: the client never infers state on its own.
func (s *Session) setState(state protocol.State) {
	s.state = state
	s.stateVal.Store(state)
	if msg, err := protocol.NewSetStateMessage(state); err == nil {
		s.sendMsg(msg)
	}
	s.log.Debug("state", "state", string(state))
}

func (s *Session) sendType(t protocol.MessageType) {
	if msg, err := protocol.NewMessage(t, nil); err == nil {
		s.sendMsg(msg)
	}
}

func (s *Session) sendError(text string) {
	if msg, err := protocol.NewErrorMessage(text); err == nil {
		s.sendMsg(msg)
	}
}

func (s *Session) sendMsg(msg *protocol.Message) {
	if err := s.send.Send(msg); err != nil {
		s.log.Warn("send failed", "type", string(msg.Type), "err", err)
	}
}
